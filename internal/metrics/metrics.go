// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン・登録の結果ラベル
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeDuplicate   = "duplicate"
	OutcomeInvalidRole = "invalid_role"
	OutcomeError       = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordLogout()
	RecordGuardRejection(path string)
	RecordPrediction(cropType string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	logouts         prometheus.Counter
	guardRejections *prometheus.CounterVec
	predictions     *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvision_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvision_registrations_total",
			Help: "結果別のアカウント登録数",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yieldvision_logouts_total",
			Help: "ログアウトの合計数",
		}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvision_guard_rejections_total",
			Help: "未ログインで保護されたエンドポイントにアクセスした数",
		}, []string{"path"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvision_predictions_total",
			Help: "作物別の収量予測数",
		}, []string{"crop_type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yieldvision_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yieldvision_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.logouts,
		c.guardRejections,
		c.predictions,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRegistration はアカウント登録を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordGuardRejection はガードによる拒否を記録する。
func (c *Collector) RecordGuardRejection(path string) {
	c.guardRejections.WithLabelValues(path).Inc()
}

// RecordPrediction は収量予測を記録する。
func (c *Collector) RecordPrediction(cropType string) {
	c.predictions.WithLabelValues(cropType).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RegisterProviderGauge はキャッシュ中のセッションプロバイダー数をゲージとして登録する。
func RegisterProviderGauge(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "yieldvision_session_providers",
		Help: "メモリ上にキャッシュされているセッションプロバイダー数",
	}, func() float64 {
		return float64(count())
	}))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクス無効時やテストで使用する。
type Nop struct{}

func (Nop) RecordLogin(string)                 {}
func (Nop) RecordRegistration(string)          {}
func (Nop) RecordLogout()                      {}
func (Nop) RecordGuardRejection(string)        {}
func (Nop) RecordPrediction(string)            {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
