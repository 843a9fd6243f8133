// Package proxy fronts a storefront and runs the cart tracker on the
// traffic passing through it.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/carttracker/internal/dom"
	"github.com/gosight/gosight/carttracker/internal/tracker"
)

// maxScanBytes bounds how much of an HTML page is parsed for buttons.
const maxScanBytes = 2 << 20

type Proxy struct {
	upstream  *url.URL
	selectors []string
	reverse   *httputil.ReverseProxy
}

// New builds a reverse proxy to upstream. Requests leave through
// tr.Wrap(base), so cart adds are reported while the shopper receives the
// untouched response.
func New(upstream string, tr *tracker.Tracker, base http.RoundTripper, selectors []string) (*Proxy, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", upstream)
	}

	p := &Proxy{
		upstream:  u,
		selectors: selectors,
	}

	rp := httputil.NewSingleHostReverseProxy(u)
	director := rp.Director
	rp.Director = func(r *http.Request) {
		director(r)
		r.Host = u.Host
	}
	rp.Transport = tr.Wrap(base)
	rp.ModifyResponse = p.scanPage
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
		w.WriteHeader(http.StatusBadGateway)
	}
	p.reverse = rp

	return p, nil
}

// Handler returns the router serving every path through the proxy.
func (p *Proxy) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/__tracker/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/*", p.reverse)
	return r
}

// scanPage logs how many tracked buttons an HTML page carries. The body is
// restored unchanged.
func (p *Proxy) scanPage(resp *http.Response) error {
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") || resp.Header.Get("Content-Encoding") != "" {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScanBytes))
	if err != nil {
		return err
	}
	resp.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(data), resp.Body), closer: resp.Body}

	doc, err := dom.Parse(bytes.NewReader(data))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse page")
		return nil
	}

	buttons := doc.QuerySelectorAll(p.selectors...)
	log.Info().
		Str("path", resp.Request.URL.Path).
		Int("buttons", len(buttons)).
		Msg("Found add to cart buttons")
	return nil
}

type prefixedBody struct {
	io.Reader
	closer io.Closer
}

func (b *prefixedBody) Close() error {
	return b.closer.Close()
}
