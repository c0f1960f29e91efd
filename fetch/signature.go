package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jonwraymond/tiercache/cache"
)

// keyPrefix namespaces derived fetch keys in the shared cache.
const keyPrefix = "fetch:"

// normalizeURL resolves resource against base and puts it in canonical
// form: lower-case scheme and host, sorted query, no fragment.
func normalizeURL(base *url.URL, resource string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(resource))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResource, err)
	}
	if !u.IsAbs() {
		if base == nil {
			return nil, fmt.Errorf("%w: %q is relative and no base URL is configured", ErrInvalidResource, resource)
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidResource, u.Scheme)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = u.Query().Encode()
	return u, nil
}

// requestKey derives the cache key of an HTTP request from its method,
// normalized URL, body, headers and response type. Requests differing in
// any of these get different keys.
func requestKey(method string, u *url.URL, o options) (string, error) {
	identifier := keyPrefix + method + ":" + u.String()

	params := make(map[string]any, 3)
	if o.responseType != ResponseJSON {
		params["responseType"] = o.responseType.String()
	}
	if len(o.body) > 0 {
		sum := sha256.Sum256(o.body)
		params["body"] = hex.EncodeToString(sum[:])
	}
	if len(o.header) > 0 {
		names := make([]string, 0, len(o.header))
		for name := range o.header {
			names = append(names, name)
		}
		sort.Strings(names)
		headers := make(map[string]any, len(names))
		for _, name := range names {
			headers[name] = strings.Join(o.header.Values(name), ",")
		}
		params["headers"] = headers
	}

	key, err := cache.GenerateKey(identifier, params)
	if err != nil {
		return "", err
	}
	if cache.ValidateKey(key) != nil {
		// Over-long URLs are hashed whole.
		sum := sha256.Sum256([]byte(key))
		key = keyPrefix + method + ":" + hex.EncodeToString(sum[:])
	}
	return key, nil
}

// signature is the dedup key: requests with the same signature share one
// flight. A forced refresh never joins a flight that may answer from cache.
func signature(key string, forceRefresh bool) string {
	if forceRefresh {
		return key + "|refresh"
	}
	return key
}
