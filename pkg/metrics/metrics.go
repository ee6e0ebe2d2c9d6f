package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkerSlotsInUse is the number of supervisor activations currently
	// holding a worker-pool slot (i.e. running, not pending).
	WorkerSlotsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forkrunner_worker_slots_in_use",
			Help: "Number of worker-pool slots currently occupied by a running task",
		},
	)

	WorkerSlotsCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forkrunner_worker_slots_capacity",
			Help: "Configured worker-pool capacity",
		},
	)

	KnownTasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forkrunner_known_tasks_total",
			Help: "Total number of known tasks by classification (running, pending)",
		},
		[]string{"classification"},
	)

	PortsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forkrunner_ports_in_use",
			Help: "Number of ports currently held by the port allocator",
		},
	)

	TaskOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkrunner_task_outcomes_total",
			Help: "Total number of task completions by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "cancelled"
	)

	SupervisorActivationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forkrunner_supervisor_activation_duration_seconds",
			Help:    "Wall-clock time from dispatch to Cleanup for one supervisor activation",
			Buckets: prometheus.DefBuckets,
		},
	)

	PreparingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forkrunner_preparing_duration_seconds",
			Help:    "Time spent in the Preparing state before the child process is spawned",
			Buckets: prometheus.DefBuckets,
		},
	)

	RestoreStoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkrunner_restore_store_writes_total",
			Help: "Total number of restore-store save attempts by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	ShutdownSurvivorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "forkrunner_shutdown_survivors",
			Help: "Number of tasks still running when the last stop() call's graceful timeout elapsed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WorkerSlotsInUse,
		WorkerSlotsCapacity,
		KnownTasksTotal,
		PortsInUse,
		TaskOutcomesTotal,
		SupervisorActivationDuration,
		PreparingDuration,
		RestoreStoreWritesTotal,
		ShutdownSurvivorsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
