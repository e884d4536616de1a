package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRegistry holds every factcheck collector
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		LLMRequests, LLMTokens,
		ActionsTotal, ActionDuration,
		VerdictsTotal, Iterations, ClaimDuration,
		WorkersBusy,
	)
}

// LLMRequests counts generation calls by provider and outcome
var LLMRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "factcheck",
		Name:      "llm_requests_total",
		Help:      "LLM generation calls by provider and status.",
	},
	[]string{"provider", "status"}, // ok | error | cached
)

// LLMTokens counts tokens reported by providers
var LLMTokens = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "factcheck",
		Name:      "llm_tokens_total",
		Help:      "Tokens consumed by LLM calls.",
	},
	[]string{"provider"},
)

// ActionsTotal counts performed actions by name and outcome
var ActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "factcheck",
		Name:      "actions_total",
		Help:      "Actions performed by name and status.",
	},
	[]string{"action", "status"}, // useful | empty | error
)

// ActionDuration observes tool latency
var ActionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "factcheck",
		Name:      "action_duration_seconds",
		Help:      "Tool execution time per action.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"action"},
)

// VerdictsTotal counts final verdicts
var VerdictsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "factcheck",
		Name:      "verdicts_total",
		Help:      "Final verdicts by label.",
	},
	[]string{"label"},
)

// Iterations observes loop rounds per claim
var Iterations = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "factcheck",
		Name:      "iterations",
		Help:      "Plan/act/judge rounds per claim.",
		Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
	},
)

// ClaimDuration observes end-to-end time per claim
var ClaimDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "factcheck",
		Name:      "claim_duration_seconds",
		Help:      "Time to reach a verdict for one claim.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	},
)

// WorkersBusy reports claims in flight per worker
var WorkersBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "factcheck",
		Name:      "worker_busy",
		Help:      "Claims currently being checked per worker.",
	},
	[]string{"worker_id"},
)

// Handler exposes the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
