// Package tracker observes add-to-cart interactions on a storefront page and
// reports them to a metrics endpoint.
//
// Two observation points feed one reporter: click listeners on add-to-cart
// buttons, and a wrapped network client that watches cart-add calls. Report
// failures are logged and never reach the page.
package tracker

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gosight/gosight/carttracker/internal/dom"
)

var ErrNoDocument = errors.New("tracker: no document")

// Tracker owns the reporter, the wrapped transport and the in-flight
// reports of one page.
type Tracker struct {
	reporter  *Reporter
	cartPath  string
	selectors []string
	logger    zerolog.Logger

	mu          sync.RWMutex
	transport   http.RoundTripper
	initialized bool

	inflight sync.WaitGroup
}

// New creates a tracker reporting to endpoint. base is the page's network
// client; nil means http.DefaultTransport. Reports travel through the
// tracker's current transport, wrapped or not.
func New(endpoint string, base http.RoundTripper, opts ...Option) *Tracker {
	o := newOptions(opts)
	if base == nil {
		base = http.DefaultTransport
	}

	t := &Tracker{
		cartPath:  o.cartPath,
		selectors: append([]string(nil), o.selectors...),
		logger:    o.logger,
		transport: base,
	}
	t.reporter = NewReporter(endpoint, &http.Client{Transport: currentTransport{t}}, opts...)

	t.logger.Info().Str("endpoint", t.reporter.Endpoint()).Msg("Cart tracker created")
	return t
}

// Attach initializes the tracker when doc becomes ready.
func (t *Tracker) Attach(doc *dom.Document) {
	if doc == nil {
		t.logger.Error().Err(ErrNoDocument).Msg("Cannot attach tracker")
		return
	}
	doc.OnReady(func(d *dom.Document) {
		t.Init(d)
	})
}

// Init binds click listeners on doc and wraps the transport. Calling it
// twice binds every listener twice and wraps the transport twice; nothing
// guards against that. Binding errors are logged and returned; the
// interceptor is installed either way.
func (t *Tracker) Init(doc *dom.Document) error {
	t.logger.Info().Msg("Starting initialization")

	bindErr := t.trackAddToCartClicks(doc)
	if bindErr != nil {
		t.logger.Error().Err(bindErr).Msg("Error tracking add to cart clicks")
	}

	t.trackSuccessfulCartAdds()

	t.mu.Lock()
	t.initialized = true
	t.mu.Unlock()

	t.logger.Info().Msg("Initialization complete")
	return bindErr
}

func (t *Tracker) Initialized() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.initialized
}

func (t *Tracker) trackAddToCartClicks(doc *dom.Document) error {
	if doc == nil {
		return ErrNoDocument
	}

	buttons := doc.QuerySelectorAll(t.selectors...)
	t.logger.Info().Int("count", len(buttons)).Msg("Found add to cart buttons")

	var errs []error
	for _, b := range buttons {
		if err := b.AddEventListener("click", t.handleClick); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) handleClick(el *dom.Element) {
	t.logger.Debug().Str("tag", el.Tag()).Msg("Add to cart button clicked")
	t.dispatch(context.Background(), AddToCartClick, Details{})
}

func (t *Tracker) trackSuccessfulCartAdds() {
	t.mu.Lock()
	t.transport = t.Wrap(t.transport)
	t.mu.Unlock()
}

// Wrap returns a transport that delegates to next and reports successful
// cart adds. Wrap does not change the tracker's own transport.
func (t *Tracker) Wrap(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &interceptor{next: next, tracker: t}
}

// Transport returns the tracker's current transport.
func (t *Tracker) Transport() http.RoundTripper {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.transport
}

// Client returns an HTTP client that always uses the current transport,
// including wrappers installed after the call.
func (t *Tracker) Client() *http.Client {
	return &http.Client{Transport: currentTransport{t}}
}

func (t *Tracker) Reporter() *Reporter {
	return t.reporter
}

// Wait blocks until every in-flight report has finished.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

// dispatch reports asynchronously. The error has already been logged by
// the reporter and goes no further.
func (t *Tracker) dispatch(ctx context.Context, kind EventKind, details Details) {
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		_ = t.reporter.Report(ctx, kind, details)
	}()
}

// currentTransport resolves the tracker's transport on every request.
type currentTransport struct{ t *Tracker }

func (c currentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.t.Transport().RoundTrip(req)
}
