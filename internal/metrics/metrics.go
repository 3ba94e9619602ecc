// Package metrics exposes the Prometheus collectors the router and cache
// update as they work; registration is optional (nil-safe) so callers that
// never start the metrics HTTP listener pay no cost beyond a few counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters/histograms this process can emit.
type Registry struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	RouteDispatch  *prometheus.CounterVec
	BackendReconnects prometheus.Counter
	FastPathHits   prometheus.Counter
}

// New builds and registers a fresh Registry against reg. Pass
// prometheus.NewRegistry() for isolated tests, or prometheus.DefaultRegisterer
// for the live process.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notionmcp_cache_hits_total",
			Help: "Response cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notionmcp_cache_misses_total",
			Help: "Response cache misses (including expired-on-read deletions).",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notionmcp_cache_evictions_total",
			Help: "Entries evicted for TTL expiry or LRU overflow.",
		}),
		RouteDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notionmcp_route_dispatch_total",
			Help: "Tool calls dispatched, by route mode.",
		}, []string{"mode"}),
		BackendReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notionmcp_backend_reconnects_total",
			Help: "Remote-backend reconnect attempts triggered by a transient failure.",
		}),
		FastPathHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notionmcp_fastpath_hits_total",
			Help: "Tool calls served by the SQLite fast-path instead of the HTTP client.",
		}),
	}

	if reg != nil {
		reg.MustRegister(r.CacheHits, r.CacheMisses, r.CacheEvictions, r.RouteDispatch, r.BackendReconnects, r.FastPathHits)
	}

	return r
}

// Noop returns a Registry backed by unregistered collectors, safe to use
// in any code path that does not want to touch the default registry
// (e.g. tests that construct many Managers).
func Noop() *Registry {
	return New(nil)
}
