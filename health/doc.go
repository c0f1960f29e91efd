// Package health reports whether the cache tiers behind a tiercache process
// can serve.
//
// A Checker reports one component. The Status is Healthy, Degraded or
// Unhealthy. LocalChecker watches the client-durable store and its quota,
// RemoteChecker pings the shared backend and reads its circuit breaker, and
// ManagerChecker reports the manager's counters and sweep state.
//
// # Aggregating
//
// An Aggregator runs registered checkers in parallel under one timeout.
// Checkers registered with RegisterOptional can only degrade the overall
// status: the cache keeps answering from the memory tier when a durable
// tier is gone.
//
//	agg := health.NewAggregator()
//	agg.Register("cache", health.NewManagerChecker(mgr))
//	agg.RegisterOptional("local", health.NewLocalChecker(local, health.LocalCheckerConfig{}))
//	agg.RegisterOptional("remote", health.NewRemoteChecker(remote))
//
// # HTTP Endpoints
//
// Routes mounts the probes on a gorilla/mux router:
//
//	/healthz          liveness, always 200
//	/readyz           200 unless the overall status is Unhealthy
//	/health           JSON report of every check
//	/health/{check}   JSON report of one check
package health
