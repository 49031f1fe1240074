package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP      httpSummary   `json:"http"`
	Codes     codeSummary   `json:"codes"`
	Notifier  notifierInfo  `json:"notifier"`
	Auth      authInfo      `json:"auth"`
	RateLimit rateLimitInfo `json:"rateLimit"`
	Janitor   janitorInfo   `json:"janitor"`
	DB        dbInfo        `json:"db"`
	Server    serverInfo    `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type codeSummary struct {
	Issued          float64 `json:"issued"`
	RateLimited     float64 `json:"rateLimited"`
	Verified        float64 `json:"verified"`
	FailedVerifying float64 `json:"failedVerifying"`
}

type notifierInfo struct {
	Delivered  float64 `json:"delivered"`
	Failed     float64 `json:"failed"`
	P95Latency float64 `json:"p95Latency"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type janitorInfo struct {
	Sweeps  float64 `json:"sweeps"`
	Errors  float64 `json:"errors"`
	Removed float64 `json:"removed"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// ExpositionHandler serves the private registry in the Prometheus text format.
func (m *Metrics) ExpositionHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SummaryHandler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry and condenses it into a Summary.
func (m *Metrics) Summarize() (Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return Summary{}, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	verifications := fam["taskhub_code_verifications_total"]
	verified := sumWithLabel(verifications, "outcome", "verified")
	start := gaugeValue(fam["taskhub_server_start_time_seconds"])

	return Summary{
		HTTP: httpSummary{
			TotalRequests: sumWithLabel(fam["taskhub_http_requests_total"], "", ""),
			ErrorRate:     errorRate(fam["taskhub_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["taskhub_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["taskhub_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["taskhub_http_request_duration_seconds"], 0.99),
		},
		Codes: codeSummary{
			Issued:          sumWithLabel(fam["taskhub_codes_requested_total"], "result", "issued"),
			RateLimited:     sumWithLabel(fam["taskhub_codes_requested_total"], "result", "rate_limited"),
			Verified:        verified,
			FailedVerifying: sumWithLabel(verifications, "", "") - verified,
		},
		Notifier: notifierInfo{
			Delivered:  sumWithLabel(fam["taskhub_notifier_deliveries_total"], "result", "delivered"),
			Failed:     sumWithLabel(fam["taskhub_notifier_deliveries_total"], "result", "failed"),
			P95Latency: histogramPercentile(fam["taskhub_notifier_duration_seconds"], 0.95),
		},
		Auth: authInfo{
			Failures:  sumWithLabel(fam["taskhub_auth_failures_total"], "", ""),
			Successes: sumWithLabel(fam["taskhub_auth_successes_total"], "", ""),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumWithLabel(fam["taskhub_ratelimit_rejections_total"], "", ""),
		},
		Janitor: janitorInfo{
			Sweeps:  sumWithLabel(fam["taskhub_janitor_sweeps_total"], "", ""),
			Errors:  sumWithLabel(fam["taskhub_janitor_sweeps_total"], "status", "error"),
			Removed: sumWithLabel(fam["taskhub_janitor_removed_codes_total"], "", ""),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["taskhub_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["taskhub_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["taskhub_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

// --- Prometheus metric helpers ---

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// sumWithLabel sums counter values in f. An empty labelName sums every series.
func sumWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		if labelName != "" && !hasLabel(m, labelName, labelValue) {
			continue
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 || ms[0].GetGauge() == nil {
		return 0
	}
	return ms[0].GetGauge().GetValue()
}

// errorRate is the share of requests answered with a 5xx status.
func errorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errs float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" && len(lp.GetValue()) > 0 && lp.GetValue()[0] == '5' {
				errs += v
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errs / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
