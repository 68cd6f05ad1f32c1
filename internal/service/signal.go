package service

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/trustledger/internal/domain"
)

var tracer = otel.Tracer("signal")

const (
	// FirehoseChannel receives every event.
	FirehoseChannel = "trustledger:vouches"
	entityChannel   = "trustledger:entity:"
)

// EntityChannel is the channel carrying events about one entity.
func EntityChannel(id string) string {
	return entityChannel + id
}

type SignalService struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func NewSignalService(redisClient *redis.Client, logger zerolog.Logger) *SignalService {
	return &SignalService{
		rdb:    redisClient,
		logger: logger,
	}
}

func (s *SignalService) Publish(ctx context.Context, event domain.VouchEvent) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Publish")
	defer span.End()

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "SignalService.Publish: json.Marshal failed")
	}

	channels := []string{FirehoseChannel}
	if event.EntityID != "" {
		channels = append(channels, EntityChannel(event.EntityID))
	}

	pipe := s.rdb.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, jsonstr)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "SignalService.Publish: pipeline exec failed")
	}

	return nil
}

// Realtime streams events for the entity ids most recently received on
// request. The returned channel is closed when ctx ends or request closes.
func (s *SignalService) Realtime(ctx context.Context, request <-chan []string) <-chan domain.VouchEvent {
	response := make(chan domain.VouchEvent)

	go func() {
		defer close(response)

		pubsub := s.rdb.Subscribe(ctx)
		defer pubsub.Close()
		messages := pubsub.Channel()

		var current []string
		for {
			select {
			case <-ctx.Done():
				return
			case ids, ok := <-request:
				if !ok {
					return
				}
				if len(current) > 0 {
					if err := pubsub.Unsubscribe(ctx, current...); err != nil {
						s.logger.Warn().Err(err).Msg("realtime unsubscribe failed")
					}
				}
				current = current[:0]
				for _, id := range ids {
					current = append(current, EntityChannel(id))
				}
				if len(current) > 0 {
					if err := pubsub.Subscribe(ctx, current...); err != nil {
						s.logger.Warn().Err(err).Msg("realtime subscribe failed")
					}
				}
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.VouchEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
					continue
				}
				select {
				case response <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return response
}
