package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики процесса. Регистрируются в глобальном реестре Prometheus.
var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipesim_runs_started_total",
		Help: "Total pipeline runs started",
	})

	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipesim_runs_finished_total",
		Help: "Total pipeline runs finished, by final status",
	}, []string{"status"})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipesim_active_runs",
		Help: "Stage drivers currently in flight",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipesim_stage_duration_seconds",
		Help:    "Wall time of simulated stage work",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipesim_events_published_total",
		Help: "Events published to the broadcaster, by type",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipesim_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full",
	})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipesim_event_subscribers",
		Help: "Currently registered event subscribers",
	})

	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipesim_events_relayed_total",
		Help: "Events forwarded to AMQP, by outcome",
	}, []string{"outcome"})

	AMQPConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipesim_amqp_connected",
		Help: "1 while the RabbitMQ connection is up",
	})

	AMQPReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipesim_amqp_reconnects_total",
		Help: "Successful RabbitMQ reconnects",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipesim_http_requests_total",
		Help: "HTTP requests handled, by method and status",
	}, []string{"method", "status"})
)
