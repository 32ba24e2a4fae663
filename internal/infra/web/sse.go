package web

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/metrics"
)

// Compile-time check
var _ adapter.UIPresenter = (*Hub)(nil)

// subscriberBuffer bounds queued frames per stream. Every frame carries
// fully re-derived state, so dropping under backpressure loses nothing a
// later frame does not restate.
const subscriberBuffer = 16

type sseMsg struct {
	event string
	data  []byte
}

type subscriber struct {
	ch chan sseMsg
}

// Hub fans engine state out to the connected event streams of each user.
// Delivery is best effort: a full subscriber buffer drops the frame rather
// than block the engine.
type Hub struct {
	log zerolog.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		log:  logger.With().Str("component", "sse_hub").Logger(),
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

// Attach registers a stream for userID and returns its frame channel plus
// a detach func. The channel closes when the hub shuts down.
func (h *Hub) Attach(userID string) (<-chan sseMsg, func()) {
	sub := &subscriber{ch: make(chan sseMsg, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	metrics.IncSSESubscribers()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			h.mu.Lock()
			removed := false
			if set, ok := h.subs[userID]; ok {
				if _, present := set[sub]; present {
					delete(set, sub)
					removed = true
					if len(set) == 0 {
						delete(h.subs, userID)
					}
				}
			}
			h.mu.Unlock()
			if removed {
				metrics.DecSSESubscribers()
			}
		})
	}
	return sub.ch, detach
}

func (h *Hub) HasSubscribers(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && len(h.subs[userID]) > 0
}

// Shutdown closes every stream channel. Handlers observe the close, drain
// their connections and detach themselves.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
	}
}

func (h *Hub) publish(userID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode stream frame")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- sseMsg{event: event, data: data}:
		default:
			// Slow consumer; the next state frame supersedes this one.
		}
	}
}

func (h *Hub) ActiveChanged(userID string, snap model.SessionSnapshot) {
	h.publish(userID, "active", snap)
}

func (h *Hub) HistoryChanged(userID string, items []model.HistoryItem) {
	h.publish(userID, "history", items)
}

func (h *Hub) BalanceChanged(userID string, b model.Balance) {
	h.publish(userID, "balance", b)
}

func (h *Hub) GrantsChanged(userID string, gs []model.Grant) {
	h.publish(userID, "grants", gs)
}

func (h *Hub) Notice(userID string, n model.Notice) {
	h.publish(userID, "notice", n)
}
