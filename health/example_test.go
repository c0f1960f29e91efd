package health_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gorilla/mux"

	"github.com/jonwraymond/tiercache/cache"
	"github.com/jonwraymond/tiercache/health"
	"github.com/jonwraymond/tiercache/localstore"
)

func ExampleNewLocalChecker() {
	ctx := context.Background()
	store := localstore.NewMemory(1000)
	_ = store.Set(ctx, "tiercache_pokemon:25", fmt.Sprintf("%0850d", 0))

	local, _ := cache.NewLocalTier(cache.LocalConfig{Store: store})
	result := health.NewLocalChecker(local, health.LocalCheckerConfig{}).Check(ctx)

	fmt.Println(result.Status)
	fmt.Println(result.Message)
	// Output:
	// degraded
	// local quota high: 87.0% used
}

func ExampleAggregator_RegisterOptional() {
	agg := health.NewAggregator()
	agg.Register("cache", health.NewCheckerFunc("cache", func(context.Context) health.Result {
		return health.Healthy("cache serving")
	}))
	agg.RegisterOptional("remote", health.NewCheckerFunc("remote", func(context.Context) health.Result {
		return health.Unhealthy("remote backend unreachable", nil)
	}))

	fmt.Println(agg.Report(context.Background()).Status)
	// Output:
	// degraded
}

func ExampleRoutes() {
	agg := health.NewAggregator()
	agg.Register("cache", health.NewCheckerFunc("cache", func(context.Context) health.Result {
		return health.Healthy("cache serving")
	}))

	r := mux.NewRouter()
	health.Routes(r, agg)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	fmt.Println(rec.Code, rec.Body.String())
	// Output:
	// 200 OK
}
