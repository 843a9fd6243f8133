package tracker

import (
	"encoding/json"
	"errors"
	"time"
)

// EventKind names a tracked cart interaction.
type EventKind string

const (
	// AddToCartClick is reported when a tracked button is clicked.
	AddToCartClick EventKind = "add_to_cart_click"
	// AddToCartSuccess is reported when a cart-add call returns 2xx with a
	// JSON object body.
	AddToCartSuccess EventKind = "add_to_cart_success"
)

// TimestampLayout matches the ISO-8601 form browsers emit for Date values.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ErrUnknownEvent is returned by ParseEventKind for names outside the two
// tracked kinds.
var ErrUnknownEvent = errors.New("unknown cart event kind")

// ParseEventKind validates a wire event name.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case AddToCartClick, AddToCartSuccess:
		return k, nil
	}
	return "", ErrUnknownEvent
}

// Details are extra key/value pairs flattened into the report body.
type Details map[string]interface{}

// Event is one report sent to the metrics endpoint.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Details   Details
}

// NewEvent builds an event stamped at the given time.
func NewEvent(kind EventKind, at time.Time, details Details) Event {
	return Event{Kind: kind, Timestamp: at, Details: details}
}

// MarshalJSON renders {event, timestamp, ...details}. Details cannot
// override event or timestamp.
func (e Event) MarshalJSON() ([]byte, error) {
	body := make(map[string]interface{}, len(e.Details)+2)
	for k, v := range e.Details {
		body[k] = v
	}
	body["event"] = string(e.Kind)
	body["timestamp"] = FormatTimestamp(e.Timestamp)
	return json.Marshal(body)
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CartAddResponse is the subset of a /cart/add.js response body the tracker
// reads. Numbers are kept verbatim.
type CartAddResponse struct {
	ID        json.Number `json:"id"`
	VariantID json.Number `json:"variant_id"`
	Quantity  json.Number `json:"quantity"`
}

// Details maps the response onto success-event details. Missing fields are
// reported as null.
func (r CartAddResponse) Details() Details {
	return Details{
		"product_id": numberOrNil(r.ID),
		"variant_id": numberOrNil(r.VariantID),
		"quantity":   numberOrNil(r.Quantity),
	}
}

func numberOrNil(n json.Number) interface{} {
	if n == "" {
		return nil
	}
	return n
}
