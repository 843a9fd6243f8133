package enricher

import (
	"net"
	"strings"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

type Enricher struct {
	geoIP *geoip2.Reader
}

func NewEnricher(geoIPPath string) *Enricher {
	// GeoIP is optional; a missing database only disables country/city.
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		var err error
		geoIP, err = geoip2.Open(geoIPPath)
		if err != nil {
			log.Warn().Err(err).Str("path", geoIPPath).Msg("GeoIP database unavailable")
			geoIP = nil
		}
	}

	return &Enricher{
		geoIP: geoIP,
	}
}

// ClientInfo is what the collector learns about the reporting browser.
type ClientInfo struct {
	ClientIP       string `json:"client_ip,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	DeviceType     string `json:"device_type"`
	Country        string `json:"country"`
	City           string `json:"city"`
}

func (e *Enricher) Enrich(userAgentString, clientIP string) ClientInfo {
	info := ClientInfo{
		ClientIP:  stripPort(clientIP),
		UserAgent: userAgentString,
	}

	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		info.Browser, info.BrowserVersion = ua.Browser()
		info.OS = ua.OS()
		info.DeviceType = getDeviceType(ua)
	}

	if e.geoIP != nil && info.ClientIP != "" {
		ip := net.ParseIP(info.ClientIP)
		if ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				info.Country = record.Country.IsoCode
				if name, ok := record.City.Names["en"]; ok {
					info.City = name
				}
			}
		}
	}

	return info
}

// stripPort turns a RemoteAddr or the first X-Forwarded-For hop into a
// bare IP string.
func stripPort(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.IndexByte(addr, ','); i >= 0 {
		addr = strings.TrimSpace(addr[:i])
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func getDeviceType(ua *useragent.UserAgent) string {
	if ua.Mobile() {
		return "mobile"
	}
	if ua.Bot() {
		return "bot"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
