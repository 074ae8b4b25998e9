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
// サービス層と移行処理から利用する。
type MetricsCollector interface {
	RecordTodoCreated(isGuest bool)
	RecordGuestQuotaRejected()
	RecordMigrationCompleted(migratedCount int)
	RecordMigrationFailed()
	RecordRemoteFetch(api string, statusCode int)
	RecordRemoteFetchLatency(api string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	todosCreated       *prometheus.CounterVec
	quotaRejected      prometheus.Counter
	migrationsTotal    prometheus.Counter
	migratedTodos      prometheus.Counter
	migrationFailures  prometheus.Counter
	remoteFetchStatus  *prometheus.CounterVec
	remoteFetchLatency *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		todosCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_todos_created_total",
			Help: "作成されたTodoの合計数（ゲスト/登録ユーザー別）",
		}, []string{"guest"}),
		quotaRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_guest_quota_rejected_total",
			Help: "ゲスト上限により拒否されたTodo作成の合計数",
		}),
		migrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_migrations_total",
			Help: "完了したゲスト引き継ぎ移行の合計数",
		}),
		migratedTodos: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_migrated_todos_total",
			Help: "移行で所有者が書き換わったTodoの合計数",
		}),
		migrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_migration_failures_total",
			Help: "途中失敗したゲスト引き継ぎ移行の合計数",
		}),
		remoteFetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_remote_fetch_status_total",
			Help: "外部API呼び出しのステータスコード別レスポンス数",
		}, []string{"api", "status_code"}),
		remoteFetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todoman_remote_fetch_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"api"}),
	}

	reg.MustRegister(
		c.todosCreated,
		c.quotaRejected,
		c.migrationsTotal,
		c.migratedTodos,
		c.migrationFailures,
		c.remoteFetchStatus,
		c.remoteFetchLatency,
	)

	return c
}

// RecordTodoCreated はTodo作成を記録する。
func (c *Collector) RecordTodoCreated(isGuest bool) {
	c.todosCreated.WithLabelValues(strconv.FormatBool(isGuest)).Inc()
}

// RecordGuestQuotaRejected はゲスト上限による拒否を記録する。
func (c *Collector) RecordGuestQuotaRejected() {
	c.quotaRejected.Inc()
}

// RecordMigrationCompleted は移行完了と移行件数を記録する。
func (c *Collector) RecordMigrationCompleted(migratedCount int) {
	c.migrationsTotal.Inc()
	c.migratedTodos.Add(float64(migratedCount))
}

// RecordMigrationFailed は移行の途中失敗を記録する。
func (c *Collector) RecordMigrationFailed() {
	c.migrationFailures.Inc()
}

// RecordRemoteFetch は外部API呼び出しのステータスコードを記録する。
func (c *Collector) RecordRemoteFetch(api string, statusCode int) {
	c.remoteFetchStatus.WithLabelValues(api, strconv.Itoa(statusCode)).Inc()
}

// RecordRemoteFetchLatency は外部API呼び出しのレイテンシを記録する。
func (c *Collector) RecordRemoteFetchLatency(api string, duration time.Duration) {
	c.remoteFetchLatency.WithLabelValues(api).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
