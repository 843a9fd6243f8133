package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

var errNotObject = errors.New("cart add response is not a JSON object")

// interceptor is the wrapped network client. It delegates every request to
// next and inspects the cart-add ones.
type interceptor struct {
	next    http.RoundTripper
	tracker *Tracker
}

func (i *interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if !i.tracker.matchesCartAdd(req) {
		return i.next.RoundTrip(req)
	}

	i.tracker.logger.Debug().Str("url", req.URL.String()).Msg("Intercepted cart add call")

	resp, err := i.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	body, readErr := bufferBody(resp)
	if readErr != nil {
		i.tracker.logger.Error().Err(readErr).Msg("Error tracking cart add")
		return resp, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		i.tracker.logger.Debug().Int("status", resp.StatusCode).Msg("Cart add not successful, skipping")
		return resp, nil
	}

	plain, err := decodeContent(resp.Header.Get("Content-Encoding"), body)
	if err != nil {
		i.tracker.logger.Error().Err(err).Msg("Error tracking cart add")
		return resp, nil
	}

	data, err := parseCartAdd(plain)
	if err != nil {
		i.tracker.logger.Error().Err(err).Msg("Error tracking cart add")
		return resp, nil
	}

	i.tracker.logger.Debug().RawJSON("data", plain).Msg("Cart add successful")
	i.tracker.dispatch(context.WithoutCancel(req.Context()), AddToCartSuccess, data.Details())

	return resp, nil
}

// parseCartAdd reads the cart-add fields from a JSON object. Any other JSON
// value (null, arrays, strings, numbers) is rejected.
func parseCartAdd(body []byte) (CartAddResponse, error) {
	var data CartAddResponse
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data, errNotObject
	}
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return data, err
	}
	return data, nil
}

// matchesCartAdd reports whether req targets the cart-add call. A request
// with no URL never matches.
func (t *Tracker) matchesCartAdd(req *http.Request) bool {
	if req == nil || req.URL == nil || t.cartPath == "" {
		return false
	}
	return strings.Contains(req.URL.String(), t.cartPath)
}

// bufferBody reads the whole response body and puts a replay of it back on
// resp so the caller still receives every byte. On a read error the replay
// yields the bytes read and then the same error.
func bufferBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, nil
	}

	orig := resp.Body
	data, err := io.ReadAll(orig)
	if err != nil {
		resp.Body = &replayBody{
			Reader: io.MultiReader(bytes.NewReader(data), errReader{err}),
			closer: orig,
		}
		return data, err
	}

	resp.Body = &replayBody{Reader: bytes.NewReader(data), closer: orig}
	return data, nil
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
