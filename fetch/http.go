package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// errorBodyLimit is how much of a failed response body is kept.
const errorBodyLimit = 512

// httpProducer issues one HTTP request per call.
func (f *Fetcher) httpProducer(rawURL string, o options) func(ctx context.Context) (result, error) {
	return func(ctx context.Context) (result, error) {
		var body io.Reader
		if len(o.body) > 0 {
			body = bytes.NewReader(o.body)
		}
		req, err := http.NewRequestWithContext(ctx, o.method, rawURL, body)
		if err != nil {
			return result{}, err
		}
		if o.header != nil {
			req.Header = o.header.Clone()
		}
		if o.responseType == ResponseJSON && req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return result{}, err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
		if err != nil {
			return result{status: resp.StatusCode}, err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(payload) > errorBodyLimit {
				payload = payload[:errorBodyLimit]
			}
			return result{status: resp.StatusCode}, &StatusError{
				Method: o.method,
				URL:    rawURL,
				Status: resp.StatusCode,
				Body:   string(payload),
			}
		}

		data, err := decodeBody(payload, o.responseType)
		if err != nil {
			return result{status: resp.StatusCode}, err
		}
		return result{data: data, status: resp.StatusCode}, nil
	}
}
