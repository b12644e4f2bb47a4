// Package metrics はGatewayのPrometheusメトリクスを提供する。
// /metrics でスクレイプでき、上流サービスごとの転送件数とレイテンシを記録する。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopgate"

var (
	// UpstreamRequestsTotal は上流サービスへの転送件数（上流名・転送モード・ステータス別）。
	// 通信失敗はstatus="error"として数える。
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of requests forwarded to upstream services.",
		},
		[]string{"upstream", "mode", "status"},
	)

	// UpstreamRequestDurationSeconds は上流サービスへの転送にかかった時間。
	UpstreamRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms〜約9.3s
		},
		[]string{"upstream", "mode"},
	)

	// AuthRejectionsTotal は認証で拒否したリクエスト数（ルール名別）。
	AuthRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Total number of requests rejected by gateway authentication.",
		},
		[]string{"route"},
	)

	// RateLimitedTotal はレート制限で拒否したリクエスト数。
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the gateway rate limiter.",
		},
	)
)

// ObserveUpstream は上流サービスへの1回の転送結果を記録する。
// status が0の場合は通信失敗として扱う。
func ObserveUpstream(upstream, mode string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestsTotal.WithLabelValues(upstream, mode, label).Inc()
	UpstreamRequestDurationSeconds.WithLabelValues(upstream, mode).Observe(elapsed.Seconds())
}
