// Package metrics собирает метрики Prometheus по переходам жизненного цикла,
// периодическим проверкам, доставке писем и HTTP-запросам.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector набор метрик с собственным реестром.
type Collector struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	sweepRecords  *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	mailFailures  *prometheus.CounterVec
	mailDelivered *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewCollector создаёт и регистрирует все коллекторы.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "host_lifecycle"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Committed state transitions by machine and event.",
	}, []string{"machine", "event"})

	c.sweepRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "records_total",
		Help:      "Records handled by periodic sweeps by outcome (processed, skipped, failed).",
	}, []string{"sweep", "outcome"})

	c.sweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Duration of a sweep run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sweep"})

	c.mailFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mail",
		Name:      "failures_total",
		Help:      "Mail sends that failed by template.",
	}, []string{"template"})

	c.mailDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mail",
		Name:      "delivered_total",
		Help:      "Mail handed to the transport by template.",
	}, []string{"template"})

	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	c.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		c.transitions, c.sweepRecords, c.sweepDuration,
		c.mailFailures, c.mailDelivered,
		c.httpRequests, c.httpDuration,
	)
	return c
}

// Registry реестр для тестов и экспорта.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler отдаёт метрики в формате Prometheus.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTransition учитывает зафиксированный переход.
func (c *Collector) ObserveTransition(machine, event string) {
	c.transitions.WithLabelValues(machine, event).Inc()
}

// ObserveSweep учитывает итог одного прогона проверки.
func (c *Collector) ObserveSweep(sweep string, processed, skipped, failed int, took time.Duration) {
	c.sweepRecords.WithLabelValues(sweep, "processed").Add(float64(processed))
	c.sweepRecords.WithLabelValues(sweep, "skipped").Add(float64(skipped))
	c.sweepRecords.WithLabelValues(sweep, "failed").Add(float64(failed))
	c.sweepDuration.WithLabelValues(sweep).Observe(took.Seconds())
}

// ObserveMail учитывает попытку отправки письма.
func (c *Collector) ObserveMail(template string, err error) {
	if err != nil {
		c.mailFailures.WithLabelValues(template).Inc()
		return
	}
	c.mailDelivered.WithLabelValues(template).Inc()
}

// ObserveHTTP учитывает обработанный HTTP-запрос.
func (c *Collector) ObserveHTTP(method, route string, status int, took time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
