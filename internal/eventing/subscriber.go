package eventing

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/idempotency"
)

// Receiver is the part of a Pub/Sub subscriber the runner needs.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type eventClaims interface {
	Claim(ctx context.Context, consumer, eventID string) (idempotency.Claim, error)
	Complete(ctx context.Context, consumer, eventID string) error
	Release(ctx context.Context, consumer, eventID string) error
}

// SubscriberParams wires a Subscriber.
type SubscriberParams struct {
	Consumer    string
	Receiver    Receiver
	Handler     Handler
	Idempotency eventClaims
	Logger      *logger.Logger
}

// Subscriber consumes one subscription, de-duplicating by event id.
// Handler errors that are retryable nack the message; everything else is
// logged and acked. A delivery that finds the event claimed but unfinished
// is nacked so Pub/Sub retries it after the claim lapses.
type Subscriber struct {
	consumer    string
	receiver    Receiver
	handler     Handler
	idempotency eventClaims
	logg        *logger.Logger
}

func NewSubscriber(p SubscriberParams) (*Subscriber, error) {
	switch {
	case p.Consumer == "":
		return nil, errors.New("consumer name is required")
	case p.Receiver == nil:
		return nil, errors.New("subscription is required")
	case p.Handler == nil:
		return nil, errors.New("handler is required")
	case p.Idempotency == nil:
		return nil, errors.New("idempotency tracker is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Subscriber{
		consumer:    p.Consumer,
		receiver:    p.Receiver,
		handler:     p.Handler,
		idempotency: p.Idempotency,
		logg:        p.Logger,
	}, nil
}

type outcome struct {
	nack bool
}

// Run receives messages until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.receiver.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Subscriber) process(ctx context.Context, raw *gcppubsub.Message) outcome {
	fields := map[string]any{
		"consumer":   s.consumer,
		"message_id": raw.ID,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	msg, err := FromPubSub(raw)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid event envelope")
		return outcome{}
	}
	fields["event_id"] = msg.EventID
	fields["event_type"] = msg.EventType
	fields["aggregate_id"] = msg.AggregateID
	fields["occurred_at"] = msg.OccurredAt.Format(time.RFC3339Nano)
	logCtx = s.logg.WithFields(ctx, fields)

	claim, err := s.idempotency.Claim(logCtx, s.consumer, msg.EventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return outcome{nack: true}
	}
	switch claim {
	case idempotency.Processed:
		s.logg.Info(logCtx, "event already processed")
		return outcome{}
	case idempotency.InFlight:
		s.logg.Warn(logCtx, "event claimed by another delivery, retrying later")
		return outcome{nack: true}
	}

	if err := s.handler.Handle(logCtx, msg); err != nil {
		if errors.Is(err, ErrUnsupportedEventType) {
			s.logg.Warn(logCtx, "unsupported event type")
			s.complete(logCtx, msg.EventID)
			return outcome{}
		}
		if !pkgerrors.IsRetryable(err) {
			s.logg.Error(logCtx, "event rejected", err)
			s.complete(logCtx, msg.EventID)
			return outcome{}
		}
		s.logg.Error(logCtx, "handler error", err)
		if delErr := s.idempotency.Release(logCtx, s.consumer, msg.EventID); delErr != nil {
			s.logg.Error(logCtx, "clear idempotency marker", delErr)
		}
		return outcome{nack: true}
	}

	s.complete(logCtx, msg.EventID)
	s.logg.Info(logCtx, "event handled")
	return outcome{}
}

// complete keeps the processed marker. On failure the in-flight claim lapses.
func (s *Subscriber) complete(ctx context.Context, eventID string) {
	if err := s.idempotency.Complete(ctx, s.consumer, eventID); err != nil {
		s.logg.Error(ctx, "mark event processed", err)
	}
}
