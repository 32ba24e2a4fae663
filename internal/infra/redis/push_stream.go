// File: internal/infra/redis/push_stream.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// PushStream delivers studio events over Redis pub/sub. Each user gets one
// channel per scope: studio:<scope>:<userID>. Delivery is best-effort; any
// receive error is reported as a channel interruption so the session falls
// back to polling.
type PushStream struct {
	cli            *redis.Client
	log            zerolog.Logger
	reconnectDelay time.Duration
}

var _ adapter.PushStreamAdapter = (*PushStream)(nil)

func NewPushStream(client *Client, logger *zerolog.Logger) *PushStream {
	return &PushStream{
		cli:            client.cli,
		log:            logger.With().Str("component", "push_stream").Logger(),
		reconnectDelay: 2 * time.Second,
	}
}

func eventChannel(scope model.Scope, userID string) string {
	return fmt.Sprintf("studio:%s:%s", scope, userID)
}

func (p *PushStream) Subscribe(ctx context.Context, userID string, h adapter.PushHandler) (adapter.PushSubscription, error) {
	channels := make([]string, 0, 4)
	for _, sc := range model.AllScopes() {
		channels = append(channels, eventChannel(sc, userID))
	}

	sub := p.cli.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe push channels: %w", err)
	}

	s := &pushSubscription{sub: sub}
	go p.receiveLoop(ctx, s, userID, h)
	return s, nil
}

func (p *PushStream) receiveLoop(ctx context.Context, s *pushSubscription, userID string, h adapter.PushHandler) {
	down := false
	for {
		msg, err := s.sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			if !down {
				down = true
				p.log.Warn().Err(err).Str("user_id", userID).Msg("push channel interrupted")
				for _, sc := range model.AllScopes() {
					metrics.IncPushChannelDown(string(sc))
					h.ChannelDown(sc, err)
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.reconnectDelay):
			}
			continue
		}
		if down {
			down = false
			p.log.Info().Str("user_id", userID).Msg("push channel recovered")
		}

		ev, ok := p.decode(msg.Channel, msg.Payload)
		if !ok {
			continue
		}
		metrics.IncPushEvent(string(ev.Scope))
		h.HandleEvent(ev)
	}
}

// decode parses one pub/sub payload. The scope comes from the channel name,
// never from the body, so a spoofed payload cannot cross scopes.
func (p *PushStream) decode(channel, payload string) (model.ChannelEvent, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "studio" {
		p.log.Warn().Str("channel", channel).Msg("unexpected push channel name")
		return model.ChannelEvent{}, false
	}

	var ev model.ChannelEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		p.log.Warn().Err(err).Str("channel", channel).Msg("undecodable push event")
		return model.ChannelEvent{}, false
	}
	ev.Scope = model.Scope(parts[1])
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return ev, true
}

type pushSubscription struct {
	sub    *redis.PubSub
	closed atomic.Bool
}

var _ adapter.PushSubscription = (*pushSubscription)(nil)

func (s *pushSubscription) Close() error {
	s.closed.Store(true)
	return s.sub.Close()
}

func (s *pushSubscription) isClosed() bool { return s.closed.Load() }
