// Package metrics exposes Prometheus collectors for reminders and dose logging.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medtimely"

// Metrics holds the bot's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	RemindersSent     prometheus.Counter
	ReminderFailures  prometheus.Counter
	DosesLogged       *prometheus.CounterVec
	SchedulesCreated  prometheus.Counter
	ReminderCheckTime prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminder messages delivered to users.",
		}),
		ReminderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_failures_total",
			Help:      "Reminder dispatches that failed.",
		}),
		DosesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_logged_total",
			Help:      "Dose confirmations by outcome.",
		}, []string{"outcome"}),
		SchedulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_created_total",
			Help:      "Medication schedules created.",
		}),
		ReminderCheckTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_check_duration_seconds",
			Help:      "Duration of one periodic reminder check.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.RemindersSent,
		m.ReminderFailures,
		m.DosesLogged,
		m.SchedulesCreated,
		m.ReminderCheckTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReminderSent(n int) {
	if m == nil {
		return
	}
	m.RemindersSent.Add(float64(n))
}

func (m *Metrics) ReminderFailed() {
	if m == nil {
		return
	}
	m.ReminderFailures.Inc()
}

func (m *Metrics) DoseLogged(outcome string) {
	if m == nil {
		return
	}
	m.DosesLogged.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ScheduleCreated() {
	if m == nil {
		return
	}
	m.SchedulesCreated.Inc()
}

// ObserveReminderCheck records how long a reminder check took since start.
func (m *Metrics) ObserveReminderCheck(start time.Time) {
	if m == nil {
		return
	}
	m.ReminderCheckTime.Observe(time.Since(start).Seconds())
}
