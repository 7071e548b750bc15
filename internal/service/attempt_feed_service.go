package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/scorestream-api/internal/dto"
	"github.com/noah-isme/scorestream-api/internal/observability"
)

const attemptFeedBufferSize = 32

// AttemptFeedService streams graded attempts to connected teachers. Events are
// fanned out to other API nodes through NATS when available, otherwise through
// Redis pub/sub.
type AttemptFeedService interface {
	Publish(ctx context.Context, attempt dto.ChallengeAttemptResponse)
	Subscribe(classPeriod string) (<-chan dto.ChallengeAttemptResponse, func())
	Start(ctx context.Context)
}

type attemptFeedService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *attemptBroker
	nodeID       string
}

type attemptEvent struct {
	Source  string                       `json:"source"`
	Attempt dto.ChallengeAttemptResponse `json:"attempt"`
	SentAt  time.Time                    `json:"sent_at"`
}

// attemptBroker keys subscribers by class period; the empty period receives every attempt.
type attemptBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.ChallengeAttemptResponse]struct{}
}

// NewAttemptFeedService constructs the live attempt feed.
func NewAttemptFeedService(redisClient *redis.Client, natsConn *nats.Conn, subject string, logger zerolog.Logger) AttemptFeedService {
	channel := ""
	if subject != "" {
		channel = strings.ReplaceAll(subject, ".", ":")
	}

	return &attemptFeedService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "attempt_feed_service").Logger(),
		broker: &attemptBroker{
			subscribers: make(map[string]map[chan dto.ChallengeAttemptResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *attemptFeedService) Start(ctx context.Context) {
	switch {
	case s.nats != nil && s.natsSubject != "":
		go s.consumeNATS(ctx)
	case s.redis != nil && s.redisChannel != "":
		go s.consumeRedis(ctx)
	}
}

func (s *attemptFeedService) Publish(ctx context.Context, attempt dto.ChallengeAttemptResponse) {
	s.broker.broadcast(attempt)
	observability.FeedEvents().WithLabelValues("local").Inc()

	if err := s.publish(ctx, attempt); err != nil {
		s.logger.Warn().Err(err).Str("reference_id", attempt.ReferenceID).Msg("failed to fan out attempt event")
	}
}

func (s *attemptFeedService) Subscribe(classPeriod string) (<-chan dto.ChallengeAttemptResponse, func()) {
	channel := make(chan dto.ChallengeAttemptResponse, attemptFeedBufferSize)
	period := strings.TrimSpace(classPeriod)

	s.broker.subscribe(period, channel)
	observability.FeedClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(period, channel)
			observability.FeedClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (s *attemptFeedService) publish(ctx context.Context, attempt dto.ChallengeAttemptResponse) error {
	event := attemptEvent{
		Source:  s.nodeID,
		Attempt: attempt,
		SentAt:  time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.nats != nil && s.natsSubject != "" {
		return s.nats.Publish(s.natsSubject, payload)
	}

	if s.redis != nil && s.redisChannel != "" {
		return s.redis.Publish(ctx, s.redisChannel, payload).Err()
	}

	return nil
}

func (s *attemptFeedService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("attempt feed redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *attemptFeedService) consumeNATS(ctx context.Context) {
	// Every node must see every event, so this is a plain subscription rather than a queue group.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats attempt subject")
		return
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to drain attempt nats subscription")
	}
}

func (s *attemptFeedService) handleEvent(payload []byte) {
	var event attemptEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid attempt event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	observability.FeedEvents().WithLabelValues("remote").Inc()
	s.broker.broadcast(event.Attempt)
}

func (b *attemptBroker) subscribe(period string, ch chan dto.ChallengeAttemptResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[period]; !exists {
		b.subscribers[period] = make(map[chan dto.ChallengeAttemptResponse]struct{})
	}
	b.subscribers[period][ch] = struct{}{}
}

func (b *attemptBroker) unsubscribe(period string, ch chan dto.ChallengeAttemptResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[period]; ok {
		if _, present := subscribers[ch]; !present {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, period)
		}
	}
}

// broadcast drops events for subscribers whose buffer is full.
func (b *attemptBroker) broadcast(attempt dto.ChallengeAttemptResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	deliver := func(subscribers map[chan dto.ChallengeAttemptResponse]struct{}) {
		for ch := range subscribers {
			select {
			case ch <- attempt:
			default:
			}
		}
	}

	deliver(b.subscribers[attempt.ClassPeriod])
	if attempt.ClassPeriod != "" {
		deliver(b.subscribers[""])
	}
}
