package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricProbeAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_probe_attempts_total",
		Help: "Manifest existence checks issued",
	})

	metricProbeOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_probe_ready_total",
		Help: "Probe completions by outcome (confirmed or assumed)",
	}, []string{"outcome"})

	metricCellsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_live_cells_active",
		Help: "Currently mounted live preview cells",
	})

	metricCellMounts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_live_cell_mounts_total",
		Help: "Live preview cell mounts",
	})

	metricPlaybackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_playback_errors_total",
		Help: "Player errors by severity (fatal or transient)",
	}, []string{"severity"})
)
