package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fanportal/portal-service/internal/observability"
)

const gaugeSubscribers = "realtime_subscribers"

// Sink receives events delivered on a channel. Implemented by the websocket
// handler; tests substitute fakes.
type Sink interface {
	Send(payload []byte) error
}

// Hub tracks realtime subscriptions per channel. Channels are named by the
// encrypted subject identifier, so the name itself is a capability token: a
// subscriber must already know its own encrypted identity, and the raw id
// never leaks through the channel layer.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[Sink]struct{}
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		subs:    make(map[string]map[Sink]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers a sink on the given channel.
func (h *Hub) Subscribe(channel string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[channel] == nil {
		h.subs[channel] = make(map[Sink]struct{})
	}
	if _, dup := h.subs[channel][sink]; !dup {
		h.subs[channel][sink] = struct{}{}
		h.metrics.AddGauge(gaugeSubscribers, 1)
	}
}

// Unsubscribe removes a sink. Safe to call for unknown sinks.
func (h *Hub) Unsubscribe(channel string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[channel]
	if !ok {
		return
	}
	if _, present := set[sink]; !present {
		return
	}
	delete(set, sink)
	h.metrics.AddGauge(gaugeSubscribers, -1)
	if len(set) == 0 {
		delete(h.subs, channel)
	}
}

// Deliver sends the payload to every sink subscribed to the channel. A
// failing sink is dropped from the channel.
func (h *Hub) Deliver(channel string, payload []byte) {
	h.mu.Lock()
	sinks := make([]Sink, 0, len(h.subs[channel]))
	for sink := range h.subs[channel] {
		sinks = append(sinks, sink)
	}
	h.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Send(payload); err != nil {
			h.logger.Warn("realtime delivery failed", zap.String("channel", channel), zap.Error(err))
			h.Unsubscribe(channel, sink)
		}
	}
}

// SubscriberCount reports how many sinks listen on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}
