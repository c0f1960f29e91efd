// Command tiercached runs the tiered cache with its expiry sweep, upstream
// fetcher and admin API.
//
// Configuration comes from TIERCACHE_* environment variables, optionally
// seeded from a .env file. With -mint-token it prints an admin bearer token
// signed with TIERCACHE_ADMIN_JWT_SECRET and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/tiercache/auth"
	"github.com/jonwraymond/tiercache/backend"
	"github.com/jonwraymond/tiercache/cache"
	"github.com/jonwraymond/tiercache/config"
	"github.com/jonwraymond/tiercache/fetch"
	"github.com/jonwraymond/tiercache/health"
	"github.com/jonwraymond/tiercache/localstore"
	"github.com/jonwraymond/tiercache/observe"
	"github.com/jonwraymond/tiercache/resilience"
	"github.com/jonwraymond/tiercache/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tiercached:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env", "", "env file to load before reading the environment (default .env)")
	mint := flag.String("mint-token", "", "print an admin token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a minted token")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(ctx, files...)
	if err != nil {
		return err
	}

	var authn *auth.JWTAuthenticator
	if cfg.Admin.JWTSecret != "" {
		authn, err = auth.NewJWTAuthenticator(auth.JWTConfig{
			Secret:   []byte(cfg.Admin.JWTSecret),
			Issuer:   cfg.Admin.JWTIssuer,
			Audience: cfg.Admin.JWTAudience,
		})
		if err != nil {
			return err
		}
	}
	if *mint != "" {
		if authn == nil {
			return auth.ErrMissingSecret
		}
		token, err := authn.Issue(*mint, []string{cfg.Admin.Role}, *tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig())
	if err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(sctx)
	}()
	logger := obs.Logger()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return fmt.Errorf("observe middleware: %w", err)
	}

	mgr, cleanup, err := buildCache(ctx, cfg, logger, mw.Metrics())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Stop()

	fetcher, err := fetch.New(fetch.Config{
		Cache:         mgr,
		BaseURL:       cfg.Fetch.BaseURL,
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		RateLimit:     cfg.Fetch.RateLimit,
		RateBurst:     cfg.Fetch.RateBurst,
		StaleCapacity: cfg.Fetch.StaleCapacity,
		StaleTTL:      cfg.Fetch.StaleTTL,
		Defaults:      cfg.FetchOptions(),
		Middleware:    mw,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("fetcher: %w", err)
	}

	logger.Info(ctx, "tiercache started",
		observe.F("version", cfg.Version),
		observe.F("local", mgr.Local() != nil),
		observe.F("remote", mgr.Remote() != nil),
		observe.F("sweep", cfg.SweepInterval.String()))

	if !cfg.Admin.Enabled {
		<-ctx.Done()
		logger.Info(context.Background(), "shutting down")
		return nil
	}

	var metrics http.Handler
	if cfg.Observe.MetricsExporter == "prometheus" {
		metrics = promhttp.Handler()
	}
	srv, err := server.New(server.Config{
		Addr:    cfg.Admin.Addr,
		Cache:   mgr,
		Fetcher: fetcher,
		Health:  healthChecks(mgr),
		Auth:    authn,
		Role:    cfg.Admin.Role,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildCache opens the durable stores and assembles the tiers. cleanup
// closes whatever was opened.
func buildCache(ctx context.Context, cfg *config.Config, logger observe.Logger, metrics observe.Metrics) (*cache.Manager, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	memory := cache.NewMemoryTier(cache.MemoryConfig{
		Capacity: cfg.Memory.Capacity,
		Policy:   cache.Policy{DefaultTTL: cfg.Memory.TTL},
		Metrics:  metrics,
	})

	var local *cache.LocalTier
	if cfg.Local.Enabled {
		store, err := openLocalStore(ctx, cfg.Local)
		if err != nil {
			return nil, func() {}, err
		}
		closers = append(closers, store.Close)

		local, err = cache.NewLocalTier(cache.LocalConfig{
			Store:  store,
			Prefix: cfg.Local.Prefix,
			Policy: cache.Policy{DefaultTTL: cfg.Local.TTL},
			Logger: logger,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
	}

	var remote *cache.RemoteTier
	if cfg.RemoteEnabled() {
		be, err := backend.Open(ctx, cfg.BackendConfig())
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("remote backend: %w", err)
		}
		closers = append(closers, be.Close)

		breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Remote.BreakerFailures,
			ResetTimeout: cfg.Remote.BreakerReset,
			IsFailure:    cache.RemoteFailure,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn(context.Background(), "remote circuit state changed",
					observe.F("from", from.String()), observe.F("to", to.String()))
			},
		})
		remote, err = cache.NewRemoteTier(cache.RemoteConfig{
			Backend: be,
			Policy:  cache.Policy{DefaultTTL: cfg.Remote.TTL},
			Breaker: breaker,
			Logger:  logger,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
	}

	mgr := cache.NewManager(cache.Config{
		Memory:        memory,
		Local:         local,
		Remote:        remote,
		SweepInterval: cfg.SweepInterval,
		Logger:        logger,
		Metrics:       metrics,
	})
	return mgr, cleanup, nil
}

func openLocalStore(ctx context.Context, cfg config.LocalConfig) (localstore.Store, error) {
	if cfg.Path == "" {
		return localstore.NewMemory(cfg.Quota), nil
	}
	store, err := localstore.OpenSQLite(ctx, cfg.Path, cfg.Quota)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	return store, nil
}

func healthChecks(mgr *cache.Manager) *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register("cache", health.NewManagerChecker(mgr))
	if local, ok := mgr.Local().(*cache.LocalTier); ok {
		agg.RegisterOptional("local", health.NewLocalChecker(local, health.LocalCheckerConfig{}))
	}
	if remote, ok := mgr.Remote().(*cache.RemoteTier); ok {
		agg.RegisterOptional("remote", health.NewRemoteChecker(remote))
	}
	return agg
}
