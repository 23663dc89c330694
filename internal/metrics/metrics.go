// Package metrics exposes Prometheus instrumentation for lotledger.
//
// A nil *Recorder is valid and records nothing, so library callers that do
// not care about metrics can leave it unset.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/store"
)

// Append statuses.
const (
	StatusOK          = "ok"
	StatusLockTimeout = "lock_timeout"
	StatusIOError     = "io_error"
	StatusError       = "error"
)

// Recorder records engine and store metrics on one registry.
type Recorder struct {
	requests      *prometheus.CounterVec
	appends       *prometheus.CounterVec
	appendLatency prometheus.Histogram
	lockWait      prometheus.Histogram
	closed        *prometheus.CounterVec
	occupied      *prometheus.GaugeVec
	free          *prometheus.GaugeVec
}

// New registers the lotledger collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotledger_requests_total",
				Help: "Reservation requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		appends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotledger_appends_total",
				Help: "Event appends by action and status",
			},
			[]string{"action", "status"},
		),
		appendLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lotledger_append_duration_seconds",
				Help:    "Duration of event appends, lock wait included",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		lockWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lotledger_lock_wait_seconds",
				Help:    "Time spent waiting for the writer lock",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		closed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotledger_bookings_closed_total",
				Help: "Bookings closed by sweep or day close, by terminal action",
			},
			[]string{"action"},
		),
		occupied: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lotledger_lot_occupied",
				Help: "Active bookings per lot at the last observation",
			},
			[]string{"lot_id"},
		),
		free: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lotledger_lot_free",
				Help: "Free spaces per lot at the last observation",
			},
			[]string{"lot_id"},
		),
	}
}

// Request counts one engine request.
func (r *Recorder) Request(operation, outcome string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, outcome).Inc()
}

// Append records one append attempt and its duration.
func (r *Recorder) Append(action ledger.Action, err error, took time.Duration) {
	if r == nil {
		return
	}
	r.appends.WithLabelValues(string(action), AppendStatus(err)).Inc()
	r.appendLatency.Observe(took.Seconds())
}

// LockWait records time spent waiting for the writer lock.
func (r *Recorder) LockWait(d time.Duration) {
	if r == nil {
		return
	}
	r.lockWait.Observe(d.Seconds())
}

// Closed counts terminal events appended by a sweep or day close.
func (r *Recorder) Closed(events []ledger.Event) {
	if r == nil {
		return
	}
	for _, ev := range events {
		r.closed.WithLabelValues(string(ev.Action)).Inc()
	}
}

// Occupancy sets the occupancy gauges of one lot.
func (r *Recorder) Occupancy(lotID string, occupied, free int) {
	if r == nil {
		return
	}
	r.occupied.WithLabelValues(lotID).Set(float64(occupied))
	r.free.WithLabelValues(lotID).Set(float64(free))
}

// AppendStatus classifies an append error for the status label.
func AppendStatus(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case store.IsLockTimeout(err):
		return StatusLockTimeout
	case store.IsIOFailure(err):
		return StatusIOError
	default:
		return StatusError
	}
}
