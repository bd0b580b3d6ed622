package optimistic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/idilsaglam/posts/internal/apperr"
)

// Metrics counts mutation outcomes. A nil *Metrics records nothing.
type Metrics struct {
	Mutations *prometheus.CounterVec
	Rollbacks *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "posts_optimistic_mutations_total",
			Help: "Optimistic mutations by operation and outcome (committed, rolled_back, rejected)",
		}, []string{"op", "outcome"}),
		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "posts_optimistic_rollbacks_total",
			Help: "Rolled back optimistic mutations by operation and error kind",
		}, []string{"op", "kind"}),
	}
}

func (m *Metrics) committed(op Op) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op.String(), "committed").Inc()
}

func (m *Metrics) rejected(op Op) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op.String(), "rejected").Inc()
}

func (m *Metrics) rolledBack(op Op, kind apperr.Kind) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op.String(), "rolled_back").Inc()
	m.Rollbacks.WithLabelValues(op.String(), kind.String()).Inc()
}
