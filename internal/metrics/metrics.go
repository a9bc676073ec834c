// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// アシスタントとCanvas同期の両方から利用する。
type Collector struct {
	assistantRequests  *prometheus.CounterVec
	assistantTasks     prometheus.Counter
	assistantConflicts prometheus.Counter
	completionLatency  prometheus.Histogram

	feedStatus       *prometheus.CounterVec
	feedFetchLatency prometheus.Histogram
	canvasSyncs      *prometheus.CounterVec
	canvasAdded      prometheus.Counter
	canvasFailed     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		assistantRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calplanner_assistant_requests_total",
			Help: "自然言語アシスタントのリクエスト数（結果別）",
		}, []string{"outcome"}),
		assistantTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calplanner_assistant_tasks_created_total",
			Help: "アシスタントが作成したタスクの合計数",
		}),
		assistantConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calplanner_assistant_conflicts_total",
			Help: "アシスタントが検出した時間帯重複の合計数",
		}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "calplanner_assistant_completion_latency_seconds",
			Help:    "チャット補完APIのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		feedStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calplanner_canvas_feed_status_total",
			Help: "CanvasフィードのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		feedFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "calplanner_canvas_feed_fetch_latency_seconds",
			Help:    "Canvasフィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		canvasSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calplanner_canvas_syncs_total",
			Help: "Canvas同期の実行数（結果別）",
		}, []string{"outcome"}),
		canvasAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calplanner_canvas_events_added_total",
			Help: "Google Calendarに追加したCanvasイベントの合計数",
		}),
		canvasFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calplanner_canvas_events_failed_total",
			Help: "追加に失敗したCanvasイベントの合計数",
		}),
	}

	reg.MustRegister(
		c.assistantRequests,
		c.assistantTasks,
		c.assistantConflicts,
		c.completionLatency,
		c.feedStatus,
		c.feedFetchLatency,
		c.canvasSyncs,
		c.canvasAdded,
		c.canvasFailed,
	)

	return c
}

// RecordCompletionLatency はチャット補完APIのレイテンシを記録する。
func (c *Collector) RecordCompletionLatency(duration time.Duration) {
	c.completionLatency.Observe(duration.Seconds())
}

// RecordAssistantResult は1リクエスト分の作成数と重複数を記録する。
func (c *Collector) RecordAssistantResult(created, conflicts int) {
	outcome := "created"
	if created == 0 {
		outcome = "no_tasks"
	}
	c.assistantRequests.WithLabelValues(outcome).Inc()
	c.assistantTasks.Add(float64(created))
	c.assistantConflicts.Add(float64(conflicts))
}

// RecordAssistantFailure は補完API呼び出しの失敗を記録する。
func (c *Collector) RecordAssistantFailure() {
	c.assistantRequests.WithLabelValues("failed").Inc()
}

// RecordFeedFetch はCanvasフィード取得のステータスとレイテンシを記録する。
// statusCodeが0の場合は接続エラーとして扱う。
func (c *Collector) RecordFeedFetch(statusCode int, duration time.Duration) {
	label := "error"
	if statusCode > 0 {
		label = strconv.Itoa(statusCode)
	}
	c.feedStatus.WithLabelValues(label).Inc()
	c.feedFetchLatency.Observe(duration.Seconds())
}

// RecordSyncResult はCanvas同期の追加数と失敗数を記録する。
func (c *Collector) RecordSyncResult(added, failed int) {
	c.canvasSyncs.WithLabelValues("success").Inc()
	c.canvasAdded.Add(float64(added))
	c.canvasFailed.Add(float64(failed))
}

// RecordSyncFailure は同期全体の失敗を記録する。
func (c *Collector) RecordSyncFailure() {
	c.canvasSyncs.WithLabelValues("failed").Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
