package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(aiTokensTotal, downloadAttemptsTotal, imagesTotal)
}

var aiTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kb_ai_tokens_total",
		Help: "Token usage per provider and phase.",
	},
	[]string{"provider", "phase", "direction"}, // direction: in | out
)

var downloadAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kb_download_attempts_total",
		Help: "Download attempts per format-selector outcome.",
	},
	[]string{"outcome"}, // success | failure
)

var imagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kb_images_total",
		Help: "Diagram generation outcomes.",
	},
	[]string{"outcome"}, // generated | skipped | failed
)

func ObserveTokens(provider, phase string, in, out int) {
	aiTokensTotal.WithLabelValues(norm(provider), norm(phase), "in").Add(float64(in))
	aiTokensTotal.WithLabelValues(norm(provider), norm(phase), "out").Add(float64(out))
}

func IncDownloadAttempt(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	downloadAttemptsTotal.WithLabelValues(outcome).Inc()
}

func IncImage(outcome string) { imagesTotal.WithLabelValues(norm(outcome)).Inc() }
