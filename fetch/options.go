package fetch

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/tiercache/cache"
	"github.com/jonwraymond/tiercache/resilience"
)

// Defaults applied before any Option.
const (
	DefaultCacheTime  = 5 * time.Minute
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
	DefaultTimeout    = resilience.DefaultTimeout
)

// ResponseType selects how an HTTP response body is decoded.
type ResponseType int

const (
	// ResponseJSON validates the body and returns it as json.RawMessage.
	ResponseJSON ResponseType = iota
	// ResponseText returns the body as a string.
	ResponseText
	// ResponseBinary returns the body as []byte.
	ResponseBinary
)

func (t ResponseType) String() string {
	switch t {
	case ResponseJSON:
		return "json"
	case ResponseText:
		return "text"
	case ResponseBinary:
		return "binary"
	default:
		return fmt.Sprintf("responsetype(%d)", int(t))
	}
}

// ParseResponseType parses json, text or binary.
func ParseResponseType(s string) (ResponseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return ResponseJSON, nil
	case "text":
		return ResponseText, nil
	case "binary":
		return ResponseBinary, nil
	default:
		return 0, fmt.Errorf("fetch: unknown response type %q", s)
	}
}

type options struct {
	useCache     bool
	cacheTime    time.Duration
	cacheKey     string
	forceRefresh bool
	priority     cache.Priority
	staleIfError bool

	retries    int
	retryDelay time.Duration
	backoff    resilience.BackoffStrategy
	timeout    time.Duration

	responseType ResponseType
	throwOnError bool

	method string
	body   []byte
	header http.Header
}

func defaultOptions() options {
	return options{
		useCache:     true,
		cacheTime:    DefaultCacheTime,
		priority:     cache.PriorityNormal,
		retries:      DefaultRetries,
		retryDelay:   DefaultRetryDelay,
		backoff:      resilience.BackoffConstant,
		timeout:      DefaultTimeout,
		responseType: ResponseJSON,
		method:       http.MethodGet,
	}
}

// Option configures a single Fetch or Do call.
type Option func(*options)

// WithCache enables or disables the cache check and write.
func WithCache(enabled bool) Option {
	return func(o *options) { o.useCache = enabled }
}

// WithCacheTime sets the TTL of the cached result.
func WithCacheTime(d time.Duration) Option {
	return func(o *options) { o.cacheTime = d }
}

// WithCacheKey overrides the derived cache key.
func WithCacheKey(key string) Option {
	return func(o *options) { o.cacheKey = key }
}

// WithForceRefresh skips the cache check but still writes the result.
func WithForceRefresh(force bool) Option {
	return func(o *options) { o.forceRefresh = force }
}

// WithPriority sets the tiers the result is cached in and read from.
func WithPriority(p cache.Priority) Option {
	return func(o *options) { o.priority = p }
}

// WithStaleIfError returns the last good result, flagged Stale, when every
// attempt fails.
func WithStaleIfError(enabled bool) Option {
	return func(o *options) { o.staleIfError = enabled }
}

// WithRetries sets how many times a failed attempt is repeated.
func WithRetries(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.retries = n
	}
}

// WithRetryDelay sets the base wait between attempts. Zero retries at once.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) { o.retryDelay = d }
}

// WithBackoff sets how the wait grows between attempts.
func WithBackoff(s resilience.BackoffStrategy) Option {
	return func(o *options) { o.backoff = s }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithResponseType selects how the body is decoded.
func WithResponseType(t ResponseType) Option {
	return func(o *options) { o.responseType = t }
}

// WithThrowOnError makes Fetch and Do return Response.Err as their error.
func WithThrowOnError(throw bool) Option {
	return func(o *options) { o.throwOnError = throw }
}

// WithMethod sets the HTTP method. Only GET and HEAD are cached.
func WithMethod(method string) Option {
	return func(o *options) { o.method = strings.ToUpper(method) }
}

// WithBody sets the HTTP request body.
func WithBody(body []byte) Option {
	return func(o *options) { o.body = body }
}

// WithHeader adds an HTTP request header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		o.header.Add(key, value)
	}
}

func (o options) idempotent() bool {
	return o.method == http.MethodGet || o.method == http.MethodHead
}

func (o options) retryConfig() resilience.RetryConfig {
	delay := o.retryDelay
	if delay <= 0 {
		delay = -1
	}
	return resilience.RetryConfig{
		MaxAttempts:  o.retries + 1,
		InitialDelay: delay,
		Strategy:     o.backoff,
		Jitter:       o.backoff == resilience.BackoffExponential,
		RetryIf:      retryable,
	}
}
