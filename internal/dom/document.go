// Package dom models the slice of a storefront page the cart tracker
// observes: a parsed document, selector queries, click listeners and the
// ready lifecycle.
package dom

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

var ErrNilElement = errors.New("dom: nil element")

// Listener is invoked for every dispatched event of the type it was
// registered for.
type Listener func(*Element)

// Document is a parsed page plus the listeners attached to its elements.
type Document struct {
	root *html.Node

	mu       sync.Mutex
	elements map[*html.Node]*Element
	ready    bool
	onReady  []func(*Document)
}

// Element wraps one element node of a Document.
type Element struct {
	doc  *Document
	node *html.Node

	mu        sync.Mutex
	listeners map[string][]Listener
}

func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(root), nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func NewDocument(root *html.Node) *Document {
	return &Document{
		root:     root,
		elements: make(map[*html.Node]*Element),
	}
}

// OnReady registers fn to run when the document becomes ready. If the
// document is already ready, fn runs immediately.
func (d *Document) OnReady(fn func(*Document)) {
	d.mu.Lock()
	if d.ready {
		d.mu.Unlock()
		fn(d)
		return
	}
	d.onReady = append(d.onReady, fn)
	d.mu.Unlock()
}

// Ready marks the document loaded and runs pending OnReady callbacks once.
// Later calls are no-ops.
func (d *Document) Ready() {
	d.mu.Lock()
	if d.ready {
		d.mu.Unlock()
		return
	}
	d.ready = true
	pending := d.onReady
	d.onReady = nil
	d.mu.Unlock()

	log.Debug().Int("callbacks", len(pending)).Msg("Document ready")
	for _, fn := range pending {
		fn(d)
	}
}

func (d *Document) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// QuerySelectorAll returns every element matching any of the selectors, in
// document order, each element once.
//
// Each selector may be a comma separated list of compound selectors such as
// button.btn.additional-btn or input[type=submit][name="add"]. Selectors
// using combinators or malformed syntax match nothing.
func (d *Document) QuerySelectorAll(selectors ...string) []*Element {
	var parsed []compound
	for _, sel := range selectors {
		list, err := parseSelectorList(sel)
		if err != nil {
			continue
		}
		parsed = append(parsed, list...)
	}
	if len(parsed) == 0 || d.root == nil {
		return nil
	}

	var out []*Element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for _, s := range parsed {
			if s.matches(n) {
				out = append(out, d.element(n))
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// element returns the stable wrapper for n so listeners survive repeated
// queries.
func (d *Document) element(n *html.Node) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.elements[n]
	if !ok {
		el = &Element{doc: d, node: n, listeners: make(map[string][]Listener)}
		d.elements[n] = el
	}
	return el
}

func (e *Element) Tag() string {
	return e.node.Data
}

func (e *Element) Attr(key string) string {
	v, _ := attr(e.node, key)
	return v
}

// Text returns the concatenated text content of the element.
func (e *Element) Text() string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return strings.Join(strings.Fields(b.String()), " ")
}

func (e *Element) AddEventListener(eventType string, fn Listener) error {
	if e == nil {
		return ErrNilElement
	}
	if fn == nil {
		return errors.New("dom: nil listener")
	}
	e.mu.Lock()
	e.listeners[eventType] = append(e.listeners[eventType], fn)
	e.mu.Unlock()
	return nil
}

// ListenerCount reports how many listeners are attached for eventType.
func (e *Element) ListenerCount(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[eventType])
}

// Dispatch runs the listeners for eventType in registration order. A
// panicking listener is logged and does not stop the others.
func (e *Element) Dispatch(eventType string) {
	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners[eventType]...)
	e.mu.Unlock()

	for _, fn := range listeners {
		e.invoke(eventType, fn)
	}
}

func (e *Element) Click() {
	e.Dispatch("click")
}

func (e *Element) invoke(eventType string, fn Listener) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event", eventType).
				Str("tag", e.Tag()).
				Msg("Listener panicked")
		}
	}()
	fn(e)
}
