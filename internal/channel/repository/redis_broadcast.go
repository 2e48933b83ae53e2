package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"channel_sync_service/internal/channel/app"
	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// BroadcastTopic redis pub/sub channel of one chat channel
func BroadcastTopic(channelID string) string {
	return "channel:" + channelID
}

// RedisBroadcaster ephemeral events over redis pub/sub. Delivery is
// at-most-once: nothing is replayed to late or reconnecting subscribers.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster create RedisBroadcaster
func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

var _ app.Broadcaster = (*RedisBroadcaster)(nil)

// Publish wrap payload in the broadcast envelope and publish it to the channel topic
func (r *RedisBroadcaster) Publish(ctx context.Context, channelID string, kind domain.BroadcastKind, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	data, err := json.Marshal(domain.BroadcastEnvelope{Event: kind, Payload: raw})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, BroadcastTopic(channelID), data).Err()
}

// Join subscribe to the channel topic; returns once redis confirmed the subscription
func (r *RedisBroadcaster) Join(ctx context.Context, channelID string) (app.BroadcastSubscription, error) {
	topic := BroadcastTopic(channelID)
	sub := r.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		if strings.Contains(err.Error(), "NOPERM") || strings.Contains(err.Error(), "NOAUTH") {
			return nil, fmt.Errorf("%w: %v", domain.ErrSubscriptionAuth, err)
		}
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &redisSubscription{
		channelID: channelID,
		sub:       sub,
		pins:      make(chan domain.PinnedMessageEvent, 16),
		typing:    make(chan domain.TypingIndicatorEvent, 16),
		presence:  make(chan domain.PresenceEvent, 16),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.loop(subCtx)
	return s, nil
}

type redisSubscription struct {
	channelID string
	sub       *redis.PubSub
	pins      chan domain.PinnedMessageEvent
	typing    chan domain.TypingIndicatorEvent
	presence  chan domain.PresenceEvent
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

func (s *redisSubscription) Pins() <-chan domain.PinnedMessageEvent     { return s.pins }
func (s *redisSubscription) Typing() <-chan domain.TypingIndicatorEvent { return s.typing }
func (s *redisSubscription) Presence() <-chan domain.PresenceEvent      { return s.presence }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.sub.Close()
		<-s.done
	})
	return err
}

func (s *redisSubscription) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.presence)
	defer close(s.typing)
	defer close(s.pins)

	ch := s.sub.Channel()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(ctx, m.Payload)
		case <-ctx.Done():
			logger.Log.Debug("broadcast subscription closed", zap.String("channel_id", s.channelID))
			return
		}
	}
}

// dispatch decode the envelope and route it by event kind
func (s *redisSubscription) dispatch(ctx context.Context, payload string) {
	var env domain.BroadcastEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.Log.Warn("undecodable broadcast", zap.String("channel_id", s.channelID), zap.Error(err))
		return
	}

	var err error
	switch env.Event {
	case domain.EventPinnedMessage:
		var evt domain.PinnedMessageEvent
		if err = json.Unmarshal(env.Payload, &evt); err == nil {
			select {
			case s.pins <- evt:
			case <-ctx.Done():
			}
		}
	case domain.EventTypingIndicator:
		var evt domain.TypingIndicatorEvent
		if err = json.Unmarshal(env.Payload, &evt); err == nil {
			select {
			case s.typing <- evt:
			case <-ctx.Done():
			}
		}
	case domain.EventPresence:
		var evt domain.PresenceEvent
		if err = json.Unmarshal(env.Payload, &evt); err == nil {
			select {
			case s.presence <- evt:
			case <-ctx.Done():
			}
		}
	default:
		logger.Log.Debug("unknown broadcast event", zap.String("channel_id", s.channelID), zap.String("event", string(env.Event)))
		return
	}
	if err != nil {
		logger.Log.Warn("undecodable broadcast payload",
			zap.String("channel_id", s.channelID),
			zap.String("event", string(env.Event)),
			zap.Error(err),
		)
	}
}
