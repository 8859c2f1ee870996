// Package metrics はPrometheus形式のメトリクスを定義する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はアプリケーションが公開するメトリクスの集合。
type Metrics struct {
	// PollsTotal は巡回の実行回数。result: success / failure / skipped
	PollsTotal *prometheus.CounterVec
	// PollDuration は1巡回あたりの所要時間（検索APIの呼び出しを含む）。
	PollDuration prometheus.Histogram
	// NewListingsTotal は検出した新着掲載の累計件数。
	NewListingsTotal prometheus.Counter
	// NotificationsTotal は通知の送信回数。result: success / failure
	NotificationsTotal *prometheus.CounterVec
	// HTTPRequestsTotal はAPIリクエスト数。
	HTTPRequestsTotal *prometheus.CounterVec
}

// New はメトリクスを生成し、regに登録する。
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallert_polls_total",
			Help: "Number of poll executions by result.",
		}, []string{"result"}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallert_poll_duration_seconds",
			Help:    "Duration of a single poll execution.",
			Buckets: prometheus.DefBuckets,
		}),
		NewListingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallert_new_listings_total",
			Help: "Number of new listings detected.",
		}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallert_notifications_total",
			Help: "Number of notification deliveries by result.",
		}, []string{"result"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallert_http_requests_total",
			Help: "Number of HTTP requests by method and status.",
		}, []string{"method", "status"}),
	}
}

// Handler はメトリクス公開用のHTTPハンドラを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
