package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsTotal, activeJobs, stageLatencySeconds, sessionsEvictedTotal)
}

var jobsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kb_jobs_total",
		Help: "Jobs finished, labeled by terminal status.",
	},
	[]string{"status"}, // completed | failed | rejected | cancelled
)

var activeJobs = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "kb_active_jobs",
		Help: "Number of jobs currently in a non-terminal state.",
	},
)

var stageLatencySeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kb_stage_latency_seconds",
		Help:    "Pipeline stage latency distribution.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	},
	[]string{"stage", "success"},
)

var sessionsEvictedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kb_sessions_evicted_total",
		Help: "Sessions removed by the TTL sweep.",
	},
)

func IncJob(status string) { jobsTotal.WithLabelValues(norm(status)).Inc() }

func JobStarted()  { activeJobs.Inc() }
func JobFinished() { activeJobs.Dec() }

func ObserveStage(stage string, seconds float64, success bool) {
	lbl := "false"
	if success {
		lbl = "true"
	}
	stageLatencySeconds.WithLabelValues(norm(stage), lbl).Observe(seconds)
}

func AddEvictedSessions(n int) { sessionsEvictedTotal.Add(float64(n)) }
