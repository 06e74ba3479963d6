package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PointsUpserted 成功入库的轨迹点总数
	PointsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_points_upserted_total",
		Help: "Total GPS points persisted (insert or merge)",
	})
	// PointsSkipped 按原因统计被跳过的轨迹点（采样决策/校验失败/重试耗尽）
	PointsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_points_skipped_total",
		Help: "Total GPS points skipped, by reason",
	}, []string{"reason"})
	// ValidationFailures 校验失败数，按错误类别
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_validation_failures_total",
		Help: "Total payload validation failures, by kind",
	}, []string{"kind"})
	// RetryAttempts 入库重试次数
	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_retry_attempts_total",
		Help: "Total retry attempts for transient persistence failures",
	})
	// StreamReconnects 流重连次数
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_stream_reconnects_total",
		Help: "Total stream reconnect attempts",
	})
	// ConnectionState 当前连接状态（0=断开 1=已连接 2=重连中）
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_stream_connection_state",
		Help: "Current stream connection state (0=disconnected, 1=connected, 2=reconnecting)",
	})
	// CompressionRemoved 压缩流程删除的轨迹点总数
	CompressionRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_compression_points_removed_total",
		Help: "Total GPS points removed by track compression",
	})
	// UpsertLatency 单点入库耗时
	UpsertLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_upsert_latency_seconds",
		Help:    "Latency of a single point upsert",
		Buckets: prometheus.DefBuckets,
	})
)

// ObserveUpsertLatency 记录单点入库耗时
func ObserveUpsertLatency(start time.Time) {
	UpsertLatency.Observe(time.Since(start).Seconds())
}

// StartMetricsServer 启动指标与健康检查HTTP服务
func StartMetricsServer(port string) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
	_ = http.ListenAndServe(":"+port, nil)
}
