// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ロゴアップロードの結果ラベル
const (
	LogoResultSuccess     = "success"
	LogoResultUnsupported = "unsupported"
	LogoResultFailure     = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordOrganizationCreated()
	RecordOrganizationUpdated()
	RecordOrganizationsDeleted(count int)
	RecordLogoUpload(result string)
	RecordBlobDelete(success bool)
	RecordDirectoryCall(operation string, success bool)
	RecordUserDeleted()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	orgCreated     prometheus.Counter
	orgUpdated     prometheus.Counter
	orgDeleted     prometheus.Counter
	logoUploads    *prometheus.CounterVec
	blobDeletes    *prometheus.CounterVec
	directoryCalls *prometheus.CounterVec
	userDeleted    prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		orgCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probono_organizations_created_total",
			Help: "作成された組織の合計数",
		}),
		orgUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probono_organizations_updated_total",
			Help: "更新された組織の合計数",
		}),
		orgDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probono_organizations_deleted_total",
			Help: "削除された組織の合計数",
		}),
		logoUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probono_logo_uploads_total",
			Help: "結果別のロゴアップロード数",
		}, []string{"result"}),
		blobDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probono_blob_deletes_total",
			Help: "結果別のBlob削除数",
		}, []string{"result"}),
		directoryCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probono_directory_calls_total",
			Help: "操作・結果別のユーザーディレクトリ呼び出し数",
		}, []string{"operation", "result"}),
		userDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probono_users_deleted_total",
			Help: "削除されたユーザーの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probono_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "probono_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.orgCreated,
		c.orgUpdated,
		c.orgDeleted,
		c.logoUploads,
		c.blobDeletes,
		c.directoryCalls,
		c.userDeleted,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordOrganizationCreated は組織作成を記録する。
func (c *Collector) RecordOrganizationCreated() {
	c.orgCreated.Inc()
}

// RecordOrganizationUpdated は組織更新を記録する。
func (c *Collector) RecordOrganizationUpdated() {
	c.orgUpdated.Inc()
}

// RecordOrganizationsDeleted は削除された組織数を記録する。
func (c *Collector) RecordOrganizationsDeleted(count int) {
	c.orgDeleted.Add(float64(count))
}

// RecordLogoUpload はロゴアップロードの結果を記録する。
func (c *Collector) RecordLogoUpload(result string) {
	c.logoUploads.WithLabelValues(result).Inc()
}

// RecordBlobDelete はBlob削除の結果を記録する。
func (c *Collector) RecordBlobDelete(success bool) {
	c.blobDeletes.WithLabelValues(resultLabel(success)).Inc()
}

// RecordDirectoryCall はユーザーディレクトリ呼び出しの結果を記録する。
func (c *Collector) RecordDirectoryCall(operation string, success bool) {
	c.directoryCalls.WithLabelValues(operation, resultLabel(success)).Inc()
}

// RecordUserDeleted はユーザー削除を記録する。
func (c *Collector) RecordUserDeleted() {
	c.userDeleted.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordOrganizationCreated()                         {}
func (NopCollector) RecordOrganizationUpdated()                         {}
func (NopCollector) RecordOrganizationsDeleted(count int)               {}
func (NopCollector) RecordLogoUpload(result string)                     {}
func (NopCollector) RecordBlobDelete(success bool)                      {}
func (NopCollector) RecordDirectoryCall(operation string, success bool) {}
func (NopCollector) RecordUserDeleted()                                 {}
func (NopCollector) RecordHTTPStatus(statusCode int)                    {}
func (NopCollector) RecordRequestLatency(duration time.Duration)        {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
