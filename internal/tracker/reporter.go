package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// StatusError is returned when the metrics endpoint answers with a non-2xx
// status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP error! status: %d, body: %s", e.StatusCode, e.Body)
}

// Reporter posts events to the metrics endpoint. One POST per event, no
// retry.
type Reporter struct {
	endpoint string
	client   *http.Client
	origin   string
	cors     bool
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewReporter builds a reporter posting to endpoint through client. A nil
// client uses http.DefaultClient.
func NewReporter(endpoint string, client *http.Client, opts ...Option) *Reporter {
	o := newOptions(opts)
	if client == nil {
		client = http.DefaultClient
	}
	return &Reporter{
		endpoint: resolveEndpoint(endpoint, o.origin),
		client:   client,
		origin:   o.origin,
		cors:     o.cors,
		timeout:  o.timeout,
		now:      o.now,
		logger:   o.logger,
	}
}

// resolveEndpoint makes a relative endpoint absolute against the page
// origin. Without an origin the endpoint is kept as given.
func resolveEndpoint(endpoint, origin string) string {
	if origin == "" {
		return endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil || ref.IsAbs() {
		return endpoint
	}
	base, err := url.Parse(origin)
	if err != nil {
		return endpoint
	}
	return base.ResolveReference(ref).String()
}

// Endpoint returns the resolved URL reports are posted to.
func (r *Reporter) Endpoint() string {
	return r.endpoint
}

// Report sends one event stamped with the current time. Failures are logged
// and returned; callers inside the tracker swallow them.
func (r *Reporter) Report(ctx context.Context, kind EventKind, details Details) error {
	event := NewEvent(kind, r.now(), details)

	r.logger.Debug().
		Str("event", string(kind)).
		Interface("details", details).
		Msg("Reporting event")

	if err := r.send(ctx, event); err != nil {
		r.logger.Error().Err(err).Str("event", string(kind)).Msg("Error reporting cart event")
		return err
	}

	r.logger.Debug().Str("event", string(kind)).Msg("Event reported successfully")
	return nil
}

func (r *Reporter) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cors && r.origin != "" {
		req.Header.Set("Origin", r.origin)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(text))}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// fallbackLogger is used when no logger option is given.
func fallbackLogger() zerolog.Logger {
	return log.With().Str("component", "cart-tracker").Logger()
}
