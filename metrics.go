package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StoreMetrics bundles every counter exposed by a replica
// process, split into the storage tier and the client-facing
// frontend tier.
type StoreMetrics struct {
	Replica  *ReplicaMetrics
	Frontend *FrontendMetrics
}

// ReplicaMetrics counts operations performed directly against
// the CDVVSet store.
type ReplicaMetrics struct {
	Puts             metrics.Counter
	Syncs            metrics.Counter
	Resolves         metrics.Counter
	SiblingsObserved metrics.Counter
}

// FrontendMetrics counts client-facing protocol commands.
type FrontendMetrics struct {
	Gets  metrics.Counter
	Puts  metrics.Counter
	Syncs metrics.Counter
}

// NewStoreMetrics returns a StoreMetrics backed by Prometheus
// counters if prometheusAddr is non-empty, or by discard
// counters otherwise, matching the style of test environments
// that never expose a Prometheus endpoint.
func NewStoreMetrics(prometheusAddr string) *StoreMetrics {

	if prometheusAddr == "" {
		return &StoreMetrics{
			Replica: &ReplicaMetrics{
				Puts:             discard.NewCounter(),
				Syncs:            discard.NewCounter(),
				Resolves:         discard.NewCounter(),
				SiblingsObserved: discard.NewCounter(),
			},
			Frontend: &FrontendMetrics{
				Gets:  discard.NewCounter(),
				Puts:  discard.NewCounter(),
				Syncs: discard.NewCounter(),
			},
		}
	}

	return &StoreMetrics{
		Replica: &ReplicaMetrics{
			Puts: prometheus.NewCounterFrom(prom.CounterOpts{
				Namespace: "store",
				Subsystem: "replica",
				Name:      "puts_total",
				Help:      "Number of values written via Put",
			}, nil),
			Syncs: prometheus.NewCounterFrom(prom.CounterOpts{
				Namespace: "store",
				Subsystem: "replica",
				Name:      "syncs_total",
				Help:      "Number of remote clocks merged via SyncRemote",
			}, nil),
			Resolves: prometheus.NewCounterFrom(prom.CounterOpts{
				Namespace: "store",
				Subsystem: "replica",
				Name:      "resolves_total",
				Help:      "Number of keys collapsed via Resolve",
			}, nil),
			SiblingsObserved: prometheus.NewCounterFrom(prom.CounterOpts{
				Namespace: "store",
				Subsystem: "replica",
				Name:      "siblings_observed_total",
				Help:      "Cumulative count of concurrent sibling values seen across all Puts",
			}, nil),
		},
		Frontend: &FrontendMetrics{
			Gets: prometheus.NewCounterFrom(prom.CounterOpts{
				Namespace: "store",
				Subsystem: "frontend",
				Name:      "gets_total",
				Help:      "Number of GET commands served",
			}, nil),
			Puts: prometheus.NewCounterFrom(prom.CounterOpts{
				Namespace: "store",
				Subsystem: "frontend",
				Name:      "puts_total",
				Help:      "Number of PUT commands served",
			}, nil),
			Syncs: prometheus.NewCounterFrom(prom.CounterOpts{
				Namespace: "store",
				Subsystem: "frontend",
				Name:      "syncs_total",
				Help:      "Number of SYNC commands served",
			}, nil),
		},
	}
}

func runPromHTTP(logger log.Logger, addr string) {

	if addr == "" {
		level.Debug(logger).Log("msg", "prometheus addr is empty, not exposing prometheus metrics")
		return
	}

	http.Handle("/metrics", promhttp.Handler())

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}
