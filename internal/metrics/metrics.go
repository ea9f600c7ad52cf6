// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、移行ジョブ、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistrationCreated()
	RecordRegistrationConflict()
	RecordDetailedRegistrationCreated()
	RecordConsentRejection()
	RecordNotificationFailure()
	RecordMigrationRows(entity, outcome string, count int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrationsCreated prometheus.Counter
	registrationConflict prometheus.Counter
	detailedCreated      prometheus.Counter
	consentRejections    prometheus.Counter
	notificationFailures prometheus.Counter
	migrationRows        *prometheus.CounterVec
	httpStatus           *prometheus.CounterVec
	requestLatency       prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiencia_registrations_created_total",
			Help: "作成された初回登録の合計数",
		}),
		registrationConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiencia_registration_conflicts_total",
			Help: "email重複により拒否された初回登録の合計数",
		}),
		detailedCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiencia_detailed_registrations_created_total",
			Help: "作成された詳細登録の合計数",
		}),
		consentRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiencia_consent_rejections_total",
			Help: "LGPD同意が無いため拒否された詳細登録の合計数",
		}),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiencia_notification_failures_total",
			Help: "確認メール送信失敗の合計数",
		}),
		migrationRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiencia_migration_rows_total",
			Help: "旧データ移行で処理した行数（エンティティ・結果別）",
		}, []string{"entity", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiencia_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiencia_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrationsCreated,
		c.registrationConflict,
		c.detailedCreated,
		c.consentRejections,
		c.notificationFailures,
		c.migrationRows,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordRegistrationCreated は初回登録の作成を記録する。
func (c *Collector) RecordRegistrationCreated() {
	c.registrationsCreated.Inc()
}

// RecordRegistrationConflict はemail重複による拒否を記録する。
func (c *Collector) RecordRegistrationConflict() {
	c.registrationConflict.Inc()
}

// RecordDetailedRegistrationCreated は詳細登録の作成を記録する。
func (c *Collector) RecordDetailedRegistrationCreated() {
	c.detailedCreated.Inc()
}

// RecordConsentRejection はLGPD同意なしによる拒否を記録する。
func (c *Collector) RecordConsentRejection() {
	c.consentRejections.Inc()
}

// RecordNotificationFailure は確認メール送信の失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notificationFailures.Inc()
}

// RecordMigrationRows は移行ジョブで処理した行数を記録する。
// outcomeはread, inserted, skippedのいずれか。
func (c *Collector) RecordMigrationRows(entity, outcome string, count int) {
	c.migrationRows.WithLabelValues(entity, outcome).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
