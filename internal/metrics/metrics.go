// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証ゲートウェイ、検索ウィジェット、セッションオブザーバー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuth(op string, outcome string)
	RecordSearch(outcome string, duration time.Duration)
	ObserverStarted()
	ObserverStopped()
	RecordHTTPStatus(statusCode int)
	RecordRateLimited(limitType string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOps         *prometheus.CounterVec
	searches        *prometheus.CounterVec
	searchLatency   prometheus.Histogram
	activeObservers prometheus.Gauge
	httpStatus      *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundori_auth_operations_total",
			Help: "認証操作の結果別の合計数",
		}, []string{"op", "outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundori_searches_total",
			Help: "検索の結果別の合計数",
		}, []string{"outcome"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundori_search_latency_seconds",
			Help:    "検索のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeObservers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundori_active_session_observers",
			Help: "稼働中のセッションオブザーバー数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundori_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundori_rate_limited_total",
			Help: "レート制限により拒否されたリクエスト数",
		}, []string{"limit_type"}),
	}

	reg.MustRegister(
		c.authOps,
		c.searches,
		c.searchLatency,
		c.activeObservers,
		c.httpStatus,
		c.rateLimited,
	)

	return c
}

// RecordAuth は認証操作の結果を記録する。
func (c *Collector) RecordAuth(op string, outcome string) {
	c.authOps.WithLabelValues(op, outcome).Inc()
}

// RecordSearch は検索の結果とレイテンシを記録する。
func (c *Collector) RecordSearch(outcome string, duration time.Duration) {
	c.searches.WithLabelValues(outcome).Inc()
	c.searchLatency.Observe(duration.Seconds())
}

// ObserverStarted はオブザーバーの開始を記録する。
func (c *Collector) ObserverStarted() {
	c.activeObservers.Inc()
}

// ObserverStopped はオブザーバーの停止を記録する。
func (c *Collector) ObserverStopped() {
	c.activeObservers.Dec()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewRegistry はGoランタイムとプロセスのメトリクスを登録済みのレジストリを返す。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
