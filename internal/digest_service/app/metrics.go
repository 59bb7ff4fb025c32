package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	digestsCompiledCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "digest",
			Name:      "compiled_total",
			Help:      "Digests compiled and persisted, by schedule frequency.",
		},
		[]string{"frequency"},
	)
	narrativeFallbacksCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "digest",
			Name:      "narrative_fallbacks_total",
			Help:      "Digests whose narrative came from the deterministic fallback.",
		},
	)
	emptyCompilesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "digest",
			Name:      "empty_compiles_total",
			Help:      "Compile runs skipped because no eligible content existed.",
		},
	)
	compileErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "digest",
			Name:      "compile_errors_total",
			Help:      "Compile runs that failed and will retry after the claim lease.",
		},
	)
)
