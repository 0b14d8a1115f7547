// Package metrics exposes Prometheus counters for the report lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the store, the report service, the session
// cache and the scheduler.
type Recorder interface {
	RecordSubmission(outcome string)
	RecordDenial(reason string)
	RecordResolution(decision string)
	RecordAlert(success bool)
	RecordStoreSave(success bool)
	RecordStoreRecovery(kind string)
	RecordRollover(step string, success bool)
	RecordSessionEvictions(count int)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	submissions      *prometheus.CounterVec
	denials          *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	storeSaves       *prometheus.CounterVec
	storeRecoveries  *prometheus.CounterVec
	rollovers        *prometheus.CounterVec
	sessionEvictions prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_submissions_total",
			Help: "Report submissions by outcome.",
		}, []string{"outcome"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_submission_denials_total",
			Help: "Denied submissions by reason.",
		}, []string{"reason"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_resolutions_total",
			Help: "Moderation decisions applied to pending reports.",
		}, []string{"decision"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_alerts_total",
			Help: "Alert dispatch attempts by result.",
		}, []string{"result"}),
		storeSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_store_saves_total",
			Help: "Store document writes by result.",
		}, []string{"result"}),
		storeRecoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_store_recoveries_total",
			Help: "Store loads that fell back to a default document.",
		}, []string{"kind"}),
		rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restock_rollover_runs_total",
			Help: "Weekly scheduler steps by step and result.",
		}, []string{"step", "result"}),
		sessionEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restock_session_evictions_total",
			Help: "Expired submission sessions removed from the cache.",
		}),
	}

	reg.MustRegister(
		c.submissions,
		c.denials,
		c.resolutions,
		c.alerts,
		c.storeSaves,
		c.storeRecoveries,
		c.rollovers,
		c.sessionEvictions,
	)
	return c
}

func (c *Collector) RecordSubmission(outcome string) {
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDenial(reason string) {
	c.denials.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordResolution(decision string) {
	c.resolutions.WithLabelValues(decision).Inc()
}

func (c *Collector) RecordAlert(success bool) {
	c.alerts.WithLabelValues(result(success)).Inc()
}

func (c *Collector) RecordStoreSave(success bool) {
	c.storeSaves.WithLabelValues(result(success)).Inc()
}

func (c *Collector) RecordStoreRecovery(kind string) {
	c.storeRecoveries.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordRollover(step string, success bool) {
	c.rollovers.WithLabelValues(step, result(success)).Inc()
}

func (c *Collector) RecordSessionEvictions(count int) {
	c.sessionEvictions.Add(float64(count))
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSubmission(string) {}
func (Nop) RecordDenial(string) {}
func (Nop) RecordResolution(string) {}
func (Nop) RecordAlert(bool) {}
func (Nop) RecordStoreSave(bool) {}
func (Nop) RecordStoreRecovery(string) {}
func (Nop) RecordRollover(string, bool) {}
func (Nop) RecordSessionEvictions(int) {}
