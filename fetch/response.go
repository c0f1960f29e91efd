package fetch

import (
	"encoding/json"
	"time"

	"github.com/jonwraymond/tiercache/cache"
)

// Response is the settled outcome of a Fetch or Do call.
//
// Exactly one of Data and Err is meaningful. Data is never partial: a
// failed request carries no data unless it is a flagged stale fallback.
type Response struct {
	Data any
	Err  error

	// Status is the HTTP status of the final attempt, 0 for Do.
	Status int

	FromCache bool

	// Stale is set when Data is an earlier result served because every
	// attempt failed.
	Stale bool

	// Shared is set when this caller joined another caller's flight.
	Shared bool

	Attempts int
	Duration time.Duration
	Key      string
}

// OK reports whether the response carries data.
func (r *Response) OK() bool {
	return r != nil && r.Err == nil
}

// DecodeAs converts the response data into T. A failed response returns
// its error.
func DecodeAs[T any](r *Response) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilResponse
	}
	if r.Err != nil {
		return zero, r.Err
	}
	return cache.Decode[T](r.Data)
}

// decodeBody turns a successful body into the requested representation.
func decodeBody(body []byte, t ResponseType) (any, error) {
	switch t {
	case ResponseText:
		return string(body), nil
	case ResponseBinary:
		return body, nil
	default:
		if len(body) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(body) {
			return nil, ErrInvalidJSON
		}
		return json.RawMessage(body), nil
	}
}

// restore converts a cached body back to the type decodeBody returns for t.
// Durable tiers hand back JSON, so a text or binary body has to be
// unmarshalled again.
func (t ResponseType) restore(v any) (any, error) {
	switch t {
	case ResponseText:
		s, err := cache.Decode[string](v)
		return s, err
	case ResponseBinary:
		b, err := cache.Decode[[]byte](v)
		return b, err
	default:
		raw, err := cache.Decode[json.RawMessage](v)
		return raw, err
	}
}
