package workers

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksSubmitted *prometheus.CounterVec
	callerRuns     *prometheus.CounterVec
	taskPanics     *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	taskDuration   *prometheus.HistogramVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.GaugeVec, *prometheus.HistogramVec) {
	sub := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_pool_tasks_submitted_total",
			Help: "Number of tasks accepted by a worker pool",
		},
		[]string{"pool"},
	)
	cr := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_pool_caller_runs_total",
			Help: "Number of tasks run by the submitting goroutine because the queue was full",
		},
		[]string{"pool"},
	)
	pan := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_pool_task_panics_total",
			Help: "Number of tasks that panicked",
		},
		[]string{"pool"},
	)
	depth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_pool_queue_depth",
			Help: "Tasks waiting in a worker pool",
		},
		[]string{"pool"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_pool_task_duration_seconds",
			Help:    "Time spent running a task",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)
	return sub, cr, pan, depth, dur
}

func init() {
	tasksSubmitted, callerRuns, taskPanics, queueDepth, taskDuration = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers pool metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tasksSubmitted, callerRuns, taskPanics, queueDepth, taskDuration)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tasksSubmitted, callerRuns, taskPanics, queueDepth, taskDuration = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
