package collector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/carttracker/internal/enricher"
	"github.com/gosight/gosight/carttracker/internal/ratelimit"
	"github.com/gosight/gosight/carttracker/internal/sink"
	"github.com/gosight/gosight/carttracker/internal/tracker"
)

const maxEventBytes = 64 << 10

var errInvalidJSON = errors.New("invalid JSON object")

type HTTPHandler struct {
	sink     sink.Sink
	limiter  ratelimit.Limiter
	enricher *enricher.Enricher
	now      func() time.Time
}

func NewHTTPHandler(s sink.Sink, l ratelimit.Limiter, e *enricher.Enricher) *HTTPHandler {
	if l == nil {
		l = ratelimit.Unlimited{}
	}
	if e == nil {
		e = enricher.NewEnricher("")
	}
	return &HTTPHandler{
		sink:     s,
		limiter:  l,
		enricher: e,
		now:      time.Now,
	}
}

type EventResponse struct {
	Success bool     `json:"success"`
	EventID string   `json:"event_id,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// HandleCartEvent accepts one {event, timestamp, ...details} body.
func (h *HTTPHandler) HandleCartEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if len(body) > maxEventBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, EventResponse{Errors: []string{"Event too large"}})
		return
	}

	clientIP := r.Header.Get("X-Real-IP")
	if clientIP == "" {
		clientIP = r.Header.Get("X-Forwarded-For")
	}
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}

	info := h.enricher.Enrich(r.Header.Get("User-Agent"), clientIP)

	if !h.limiter.Allow(r.Context(), info.ClientIP) {
		writeJSON(w, http.StatusTooManyRequests, EventResponse{Errors: []string{"Rate limit exceeded"}})
		return
	}

	rec, err := decodeRecord(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, EventResponse{Errors: []string{err.Error()}})
		return
	}

	rec.EventID = uuid.New().String()
	rec.ReceivedAt = h.now().UTC()
	rec.ClientIP = info.ClientIP
	rec.UserAgent = info.UserAgent
	rec.Browser = info.Browser
	rec.BrowserVersion = info.BrowserVersion
	rec.OS = info.OS
	rec.DeviceType = info.DeviceType
	rec.Country = info.Country
	rec.City = info.City

	if err := h.sink.Write(r.Context(), rec); err != nil {
		log.Error().Err(err).Str("event", rec.Event).Msg("Failed to store cart event")
		writeJSON(w, http.StatusInternalServerError, EventResponse{Errors: []string{"Failed to store event"}})
		return
	}

	log.Debug().
		Str("event_id", rec.EventID).
		Str("event", rec.Event).
		Str("client_ip", rec.ClientIP).
		Msg("Cart event accepted")

	writeJSON(w, http.StatusAccepted, EventResponse{Success: true, EventID: rec.EventID})
}

// decodeRecord validates a report body and splits it into the envelope
// and its details.
func decodeRecord(body []byte) (*sink.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, errInvalidJSON
	}

	name, _ := raw["event"].(string)
	kind, err := tracker.ParseEventKind(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, name)
	}

	tsString, _ := raw["timestamp"].(string)
	ts, err := time.Parse(time.RFC3339Nano, tsString)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q", tsString)
	}

	delete(raw, "event")
	delete(raw, "timestamp")

	rec := &sink.Record{
		Event:     string(kind),
		Timestamp: ts.UTC(),
		ProductID: intField(raw, "product_id"),
		VariantID: intField(raw, "variant_id"),
		Quantity:  intField(raw, "quantity"),
	}

	if len(raw) > 0 {
		details, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		rec.Details = details
	}

	return rec, nil
}

// intField reads an integer detail. Strings holding integers are accepted
// since some storefronts send ids as strings.
func intField(m map[string]interface{}, key string) *int64 {
	var n json.Number
	switch v := m[key].(type) {
	case json.Number:
		n = v
	case string:
		n = json.Number(v)
	default:
		return nil
	}
	i, err := n.Int64()
	if err != nil {
		return nil
	}
	return &i
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// CORSMiddleware lets storefront pages on another origin post events.
// Credentials are only allowed for an explicit origin.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if allowedOrigin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
