package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/tiercache/cache"
	"github.com/jonwraymond/tiercache/observe"
	"github.com/jonwraymond/tiercache/resilience"
)

// Default limits of a Fetcher.
const (
	DefaultMaxConcurrent = 6
	DefaultStaleCapacity = 100
	DefaultStaleTTL      = 24 * time.Hour
	DefaultMaxBodyBytes  = 10 << 20
)

// Producer computes the value for a request. It must honor ctx.
type Producer func(ctx context.Context) (any, error)

// Config configures a Fetcher.
type Config struct {
	// Cache serves and stores results. Default: a memory-only Manager.
	Cache *cache.Manager

	// Client issues HTTP requests. Default: a client without its own
	// timeout, since every attempt is bounded by the call's timeout.
	Client *http.Client

	// BaseURL resolves relative resources passed to Fetch.
	BaseURL string

	// MaxConcurrent caps upstream calls in progress. Default: 6
	MaxConcurrent int

	// RateLimit paces upstream calls to this many per second, allowing
	// RateBurst back to back. Zero leaves calls unpaced.
	RateLimit float64
	RateBurst int

	// StaleCapacity and StaleTTL size the last-good-result store used by
	// WithStaleIfError. Defaults: 100 entries, 24 hours
	StaleCapacity int
	StaleTTL      time.Duration

	// MaxBodyBytes caps how much of an HTTP body is read. Default: 10 MiB
	MaxBodyBytes int64

	// Defaults are applied to every call before its own options.
	Defaults []Option

	// Middleware traces and measures each flight. Optional.
	Middleware *observe.Middleware

	Logger observe.Logger
}

// Stats counts what a Fetcher has done since it was created.
type Stats struct {
	Requests  int64                      `json:"requests"`
	Flights   int64                      `json:"flights"`
	Shared    int64                      `json:"shared"`
	CacheHits int64                      `json:"cacheHits"`
	Failures  int64                      `json:"failures"`
	Stale     int64                      `json:"stale"`
	Bulkhead  resilience.BulkheadMetrics `json:"bulkhead"`

	RateLimit *resilience.RateLimiterMetrics `json:"rateLimit,omitempty"`
}

// Fetcher runs requests through the cache, dedup, timeout and retry layers.
type Fetcher struct {
	cache    *cache.Manager
	client   *http.Client
	base     *url.URL
	bulkhead *resilience.Bulkhead
	limiter  *resilience.RateLimiter
	stale    *cache.MemoryTier
	maxBody  int64
	defaults []Option
	mw       *observe.Middleware
	logger   observe.Logger

	group singleflight.Group

	requests  atomic.Int64
	flights   atomic.Int64
	shared    atomic.Int64
	cacheHits atomic.Int64
	failures  atomic.Int64
	staleHits atomic.Int64
}

// New creates a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("%w: base URL %q", ErrInvalidResource, cfg.BaseURL)
		}
		base = u
	}

	logger := observe.OrNop(cfg.Logger).With(observe.F("component", "fetch"))
	if cfg.Cache == nil {
		cfg.Cache = cache.NewManager(cache.Config{Logger: cfg.Logger})
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.StaleCapacity <= 0 {
		cfg.StaleCapacity = DefaultStaleCapacity
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = DefaultStaleTTL
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NewMiddleware(nil, nil, nil)
	}

	var limiter *resilience.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:    cfg.RateLimit,
			Burst:   cfg.RateBurst,
			MaxWait: -1,
		})
	}

	return &Fetcher{
		cache:  cfg.Cache,
		client: cfg.Client,
		base:   base,
		// The attempt timeout bounds the wait for a slot.
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       -1,
		}),
		stale: cache.NewMemoryTier(cache.MemoryConfig{
			Name:     "stale",
			Capacity: cfg.StaleCapacity,
			Policy:   cache.Policy{DefaultTTL: cfg.StaleTTL},
		}),
		limiter:  limiter,
		maxBody:  cfg.MaxBodyBytes,
		defaults: cfg.Defaults,
		mw:       cfg.Middleware,
		logger:   logger,
	}, nil
}

// Cache returns the manager the fetcher reads and writes.
func (f *Fetcher) Cache() *cache.Manager { return f.cache }

// Stats returns a snapshot of the fetcher counters.
func (f *Fetcher) Stats() Stats {
	s := Stats{
		Requests:  f.requests.Load(),
		Flights:   f.flights.Load(),
		Shared:    f.shared.Load(),
		CacheHits: f.cacheHits.Load(),
		Failures:  f.failures.Load(),
		Stale:     f.staleHits.Load(),
		Bulkhead:  f.bulkhead.Metrics(),
	}
	if f.limiter != nil {
		m := f.limiter.Metrics()
		s.RateLimit = &m
	}
	return s
}

// Fetch issues an HTTP request for resource. Only GET and HEAD results are
// read from and written to the cache.
func (f *Fetcher) Fetch(ctx context.Context, resource string, opts ...Option) (*Response, error) {
	o := f.options(opts)

	u, err := normalizeURL(f.base, resource)
	if err != nil {
		return f.settle(&Response{Err: err}, o)
	}
	key, err := requestKey(o.method, u, o)
	if err != nil {
		return f.settle(&Response{Err: fmt.Errorf("%w: %v", ErrInvalidResource, err)}, o)
	}

	return f.run(ctx, call{
		key:       key,
		cacheable: o.idempotent(),
		hitStatus: http.StatusOK,
		produce:   f.httpProducer(u.String(), o),
		restore:   o.responseType.restore,
		opts:      o,
	})
}

// Do runs producer for key with the same cache, dedup and retry handling
// as Fetch. Results are always cacheable.
func (f *Fetcher) Do(ctx context.Context, key string, producer Producer, opts ...Option) (*Response, error) {
	o := f.options(opts)
	if producer == nil {
		return f.settle(&Response{Err: ErrNilProducer, Key: key}, o)
	}
	if err := cache.ValidateKey(key); err != nil {
		return f.settle(&Response{Err: err, Key: key}, o)
	}

	return f.run(ctx, call{
		key:       key,
		cacheable: true,
		produce: func(ctx context.Context) (result, error) {
			v, err := producer(ctx)
			return result{data: v}, err
		},
		opts: o,
	})
}

type result struct {
	data   any
	status int
}

type call struct {
	key       string
	cacheable bool
	hitStatus int
	produce   func(ctx context.Context) (result, error)
	restore   func(v any) (any, error) // converts a cache hit back to the shape produce returns
	opts      options
}

func (f *Fetcher) options(opts []Option) options {
	o := defaultOptions()
	for _, opt := range f.defaults {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// run attaches the caller to the flight for the call's signature, starting
// one if none is in progress, and waits for it or for ctx.
func (f *Fetcher) run(ctx context.Context, c call) (*Response, error) {
	f.requests.Add(1)
	start := time.Now()

	// The flight is keyed by what is requested, plus where its result is
	// stored when the cache key is overridden.
	identity := c.key
	if c.opts.cacheKey != "" {
		identity += "|key=" + c.opts.cacheKey
		c.key = c.opts.cacheKey
	}
	sig := signature(identity, c.opts.forceRefresh)

	// The flight outlives any single caller.
	flightCtx := context.WithoutCancel(ctx)
	op := observe.Operation{Component: "fetch", Name: "flight", Key: c.key}
	exec := f.mw.Wrap(func(ctx context.Context, op observe.Operation) (any, error) {
		resp := f.flight(ctx, op, c)
		return resp, resp.Err
	})

	ch := f.group.DoChan(sig, func() (any, error) {
		f.flights.Add(1)
		v, _ := exec(flightCtx, op)
		return v, nil
	})

	select {
	case res := <-ch:
		resp := *res.Val.(*Response)
		resp.Shared = res.Shared
		resp.Duration = time.Since(start)
		if res.Shared {
			f.shared.Add(1)
		}
		return f.settle(&resp, c.opts)
	case <-ctx.Done():
		return f.settle(&Response{Err: ctx.Err(), Key: c.key, Duration: time.Since(start)}, c.opts)
	}
}

// flight performs CHECK_CACHE, then IN_FLIGHT and RETRY_WAIT until the
// call settles.
func (f *Fetcher) flight(ctx context.Context, op observe.Operation, c call) *Response {
	o := c.opts
	useCache := c.cacheable && o.useCache

	if useCache && !o.forceRefresh {
		if v, ok := f.cache.Get(ctx, c.key, o.priority); ok {
			if c.restore != nil {
				restored, err := c.restore(v)
				if err != nil {
					f.logger.Warn(ctx, "cached value has unexpected shape", observe.F("key", c.key), observe.Err(err))
					ok = false
				} else {
					v = restored
				}
			}
			if ok {
				f.cacheHits.Add(1)
				return &Response{Data: v, Status: c.hitStatus, FromCache: true, Key: c.key}
			}
		}
	}

	var (
		attempts int
		out      result
	)
	rc := o.retryConfig()
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		f.logger.Debug(ctx, "retrying",
			observe.F("key", c.key), observe.F("attempt", attempt),
			observe.F("delay_ms", delay.Milliseconds()), observe.Err(err))
	}

	err := resilience.NewRetry(rc).Execute(ctx, func(ctx context.Context) error {
		attempts++
		f.mw.Metrics().RecordAttempt(ctx, op)

		res, err := resilience.Within(ctx, o.timeout, func(ctx context.Context) (result, error) {
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx); err != nil {
					return result{}, err
				}
			}
			if err := f.bulkhead.Acquire(ctx); err != nil {
				return result{}, err
			}
			defer f.bulkhead.Release()
			return c.produce(ctx)
		})
		if err != nil {
			return err
		}
		out = res
		return nil
	})

	if err != nil {
		f.failures.Add(1)
		f.logger.Error(ctx, "request failed",
			observe.F("key", c.key), observe.F("attempts", attempts), observe.Err(err))

		if o.staleIfError && c.cacheable {
			if v, ok := f.stale.Get(ctx, c.key); ok {
				f.staleHits.Add(1)
				return &Response{Data: v, Status: c.hitStatus, FromCache: true, Stale: true, Attempts: attempts, Key: c.key}
			}
		}
		return &Response{Err: err, Status: StatusCode(err), Attempts: attempts, Key: c.key}
	}

	if c.cacheable {
		_ = f.stale.Set(ctx, c.key, out.data, 0)
	}
	if useCache {
		if err := f.cache.Set(ctx, c.key, out.data, cache.SetOptions{Priority: o.priority, TTL: o.cacheTime}); err != nil {
			f.logger.Warn(ctx, "result not cached", observe.F("key", c.key), observe.Err(err))
		}
	}
	return &Response{Data: out.data, Status: out.status, Attempts: attempts, Key: c.key}
}

func (f *Fetcher) settle(resp *Response, o options) (*Response, error) {
	if o.throwOnError && resp.Err != nil {
		return resp, resp.Err
	}
	return resp, nil
}

// retryable reports whether a failed attempt may be repeated.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
