package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/infra/config"
)

// Provider exposes the limiter decision metrics.
type Provider struct {
	decisions *prometheus.CounterVec
	blocks    *prometheus.CounterVec
	swept     prometheus.Counter
}

// Attach registers the decision collectors with the provided registerer
// (nil falls back to the default registry).
func Attach(cfg *config.AppConfig, reg prometheus.Registerer) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	namespace := cfg.Telemetry.Namespace
	if namespace == "" {
		namespace = "throttle"
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Total limiter decisions partitioned by scope and outcome.",
	}, []string{"scope", "outcome"})

	blocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_total",
		Help:      "Total keys that transitioned into the blocked state, by scope.",
	}, []string{"scope"})

	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_records_total",
		Help:      "Total expired attempt records removed by the background sweep.",
	})

	for _, c := range []prometheus.Collector{decisions, blocks, swept} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, fmt.Errorf("register collector: %w", err)
			}
		}
	}

	return &Provider{decisions: decisions, blocks: blocks, swept: swept}, nil
}

// ObserveDecision records one limiter decision.
func (p *Provider) ObserveDecision(d domain.Decision) {
	if p == nil {
		return
	}

	outcome := "allowed"
	if !d.Allowed {
		outcome = "denied"
	}
	p.decisions.WithLabelValues(d.Scope, outcome).Inc()
}

// ObserveBlock records a key entering the blocked state.
func (p *Provider) ObserveBlock(scope string) {
	if p == nil {
		return
	}
	p.blocks.WithLabelValues(scope).Inc()
}

// ObserveSweep records the outcome of one background sweep pass.
func (p *Provider) ObserveSweep(removed int) {
	if p == nil || removed <= 0 {
		return
	}
	p.swept.Add(float64(removed))
}
