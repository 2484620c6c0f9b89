package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(quotaDecisionsTotal, quotaKeys, quotaEvictionsTotal) }

var (
	quotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_decisions_total",
			Help: "Quota admissions and rejections per operation family.",
		},
		[]string{"family", "decision"}, // admitted|rejected|error
	)

	quotaKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quota_keys",
			Help: "Keys currently tracked by the in-memory quota tracker.",
		},
	)

	quotaEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_evictions_total",
			Help: "Quota records dropped from memory, by reason.",
		},
		[]string{"reason"}, // expired|capacity
	)
)

func IncQuotaDecision(family, decision string) {
	quotaDecisionsTotal.WithLabelValues(norm(family), norm(decision)).Inc()
}

func SetQuotaKeys(n int) {
	quotaKeys.Set(float64(n))
}

func AddQuotaEvictions(reason string, n int) {
	if n > 0 {
		quotaEvictionsTotal.WithLabelValues(norm(reason)).Add(float64(n))
	}
}
