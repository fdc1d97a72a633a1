package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StrategyDecisions counts playback resolutions by the delivery strategy the
// resolver selected. This metric is a counter and only increases.
var StrategyDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_front_strategy_decisions",
	Help: "Playback resolutions by selected delivery strategy",
}, []string{"strategy"})

// PlaybackFailures counts terminal playback failures by cause. Each failure
// corresponds to one manual-fallback handoff.
var PlaybackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_front_playback_failures",
	Help: "Terminal playback failures by cause",
}, []string{"cause"})

// RemuxSessions tracks the number of ffmpeg remux sessions currently running
// for the transcode endpoint. This is a gauge and moves in both directions.
var RemuxSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "stream_front_remux_sessions",
	Help: "Active ffmpeg remux sessions",
})

// BytesTransferred tracks bytes moved through the server-side delivery
// endpoints. The "endpoint" label distinguishes relay from remux traffic.
var BytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_front_bytes_transferred",
	Help: "Total bytes transferred to clients",
}, []string{"endpoint"})

// SearchQueries counts title searches served by the search endpoint.
var SearchQueries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "stream_front_search_queries",
	Help: "Title search queries served",
})

// SummaryLookups counts metadata summary lookups, labeled by whether they were
// answered from the cache or the upstream.
var SummaryLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stream_front_summary_lookups",
	Help: "Metadata summary lookups by result source",
}, []string{"source"})
