// Package metrics exposes Prometheus instrumentation for the runtime:
// inbox depth, event dispatch latency, stream fragment counts, meeting
// batch sizes, and executor retry/rate-limit outcomes. Adapted from the
// teacher's HTTP-request metrics into runtime-shaped gauges/histograms.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InboxDepth tracks the current number of queued messages per agent.
	InboxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playbooks_inbox_depth",
			Help: "Number of messages currently queued in an agent's inbox",
		},
		[]string{"agent_id"},
	)

	// InboxDropped counts messages dropped due to inbox overflow.
	InboxDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_inbox_dropped_total",
			Help: "Total number of messages dropped due to inbox overflow",
		},
		[]string{"agent_id"},
	)

	// EventDispatchDuration tracks how long a single Publish call took to
	// fan out to every subscriber.
	EventDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playbooks_event_dispatch_seconds",
			Help:    "Duration of EventBus.Publish dispatch to all subscribers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// EventSubscriberCount tracks how many handlers received a given dispatch.
	EventSubscriberCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playbooks_event_subscribers",
			Help:    "Number of handlers invoked per Publish call",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
		[]string{"event_type"},
	)

	// ActiveAgents tracks currently live agents by klass.
	ActiveAgents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playbooks_active_agents",
			Help: "Number of currently live agents",
		},
		[]string{"klass"},
	)

	// ChannelsCreated counts channels created, split direct vs. meeting.
	ChannelsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_channels_created_total",
			Help: "Total number of channels created",
		},
		[]string{"kind"},
	)

	// MeetingBatchSize tracks how many messages a rolling-batch flush delivered.
	MeetingBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playbooks_meeting_batch_size",
			Help:    "Number of messages delivered per meeting rolling-batch flush",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"meeting_id"},
	)

	// StreamFragments counts stream chunks emitted per channel.
	StreamFragments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_stream_fragments_total",
			Help: "Total number of stream fragments emitted",
		},
		[]string{"channel_id"},
	)

	// ExecutorRetries counts AgentExecutor.Run retries by outcome.
	ExecutorRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_executor_retries_total",
			Help: "Total number of AgentExecutor.Run retry attempts",
		},
		[]string{"agent_klass", "outcome"},
	)

	// ExecutorRateLimited counts invocations delayed or rejected by the
	// per-klass executor rate limiter.
	ExecutorRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_executor_rate_limited_total",
			Help: "Total number of AgentExecutor.Run calls throttled by the rate limiter",
		},
		[]string{"agent_klass"},
	)

	// ProgressiveTimeouts counts progressive-timeout notifications delivered.
	ProgressiveTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbooks_progressive_timeouts_total",
			Help: "Total number of progressive-timeout notifications delivered to a waiting agent",
		},
		[]string{"agent_id"},
	)
)

// ObserveEventDispatch records one Publish call's fan-out latency and size.
func ObserveEventDispatch(eventType string, seconds float64, subscribers int) {
	EventDispatchDuration.WithLabelValues(eventType).Observe(seconds)
	EventSubscriberCount.WithLabelValues(eventType).Observe(float64(subscribers))
}

// RecordInboxDepth sets the current inbox depth gauge for an agent.
func RecordInboxDepth(agentID string, depth int) {
	InboxDepth.WithLabelValues(agentID).Set(float64(depth))
}

// RecordInboxDrop increments the drop counter for an agent's inbox.
func RecordInboxDrop(agentID string) {
	InboxDropped.WithLabelValues(agentID).Inc()
}

// RecordChannelCreated increments the channel-creation counter.
func RecordChannelCreated(isMeeting bool) {
	kind := "direct"
	if isMeeting {
		kind = "meeting"
	}
	ChannelsCreated.WithLabelValues(kind).Inc()
}

// RecordMeetingBatch records a rolling-batch flush size.
func RecordMeetingBatch(meetingID string, size int) {
	MeetingBatchSize.WithLabelValues(meetingID).Observe(float64(size))
}

// RecordStreamFragment increments the stream-fragment counter for a channel.
func RecordStreamFragment(channelID string) {
	StreamFragments.WithLabelValues(channelID).Inc()
}

// RecordExecutorRetry increments the executor retry counter.
func RecordExecutorRetry(klass, outcome string) {
	ExecutorRetries.WithLabelValues(klass, outcome).Inc()
}

// RecordExecutorRateLimited increments the executor rate-limit counter.
func RecordExecutorRateLimited(klass string) {
	ExecutorRateLimited.WithLabelValues(klass).Inc()
}

// RecordProgressiveTimeout increments the progressive-timeout counter.
func RecordProgressiveTimeout(agentID string) {
	ProgressiveTimeouts.WithLabelValues(agentID).Inc()
}

// SetActiveAgents sets the active-agent gauge for a klass.
func SetActiveAgents(klass string, count int) {
	ActiveAgents.WithLabelValues(klass).Set(float64(count))
}

// Handler returns the Prometheus metrics HTTP handler for the host process
// to mount (e.g. at /metrics in cmd/playbooksd).
func Handler() http.Handler {
	return promhttp.Handler()
}
