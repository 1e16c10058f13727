// Package idempotency records which events a consumer has already applied,
// so Pub/Sub redeliveries do not move stock twice.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

const (
	markerInFlight = "in_flight:"
	markerDone     = "done:"
)

// Claim is the outcome of claiming an event for a consumer.
type Claim int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed Claim = iota
	// Processed means an earlier delivery finished the event.
	Processed
	// InFlight means another delivery holds the event and has not finished.
	// Its claim lapses after the in-flight TTL.
	InFlight
)

func (c Claim) String() string {
	switch c {
	case Claimed:
		return "claimed"
	case Processed:
		return "processed"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

// Store is the Redis surface the tracker needs.
type Store interface {
	redis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Tracker claims event ids per consumer. A claim starts short-lived and is
// kept for the processed TTL only once Complete runs, so a consumer that
// dies mid-handle does not hide the event from its redelivery. Event ids
// are opaque strings; only the ledger's own outbox guarantees UUIDs.
type Tracker struct {
	store        Store
	inFlightTTL  time.Duration
	processedTTL time.Duration
	now          func() time.Time
}

func NewTracker(store Store, inFlightTTL, processedTTL time.Duration) (*Tracker, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case inFlightTTL <= 0:
		return nil, errors.New("in-flight ttl must be positive")
	case processedTTL < 0:
		return nil, errors.New("processed ttl must be non-negative")
	}
	return &Tracker{store: store, inFlightTTL: inFlightTTL, processedTTL: processedTTL, now: time.Now}, nil
}

// Claim takes eventID for consumer with an in-flight marker.
func (t *Tracker) Claim(ctx context.Context, consumer, eventID string) (Claim, error) {
	key, err := t.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	ok, err := t.store.SetNX(ctx, key, t.marker(markerInFlight), t.inFlightTTL)
	if err != nil {
		return InFlight, err
	}
	if ok {
		return Claimed, nil
	}

	current, err := t.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// Lapsed between the two calls; the next delivery will claim it.
		return InFlight, nil
	case err != nil:
		return InFlight, err
	case strings.HasPrefix(current, markerDone):
		return Processed, nil
	}
	return InFlight, nil
}

// Complete marks eventID as processed for the processed TTL.
func (t *Tracker) Complete(ctx context.Context, consumer, eventID string) error {
	key, err := t.key(consumer, eventID)
	if err != nil {
		return err
	}
	return t.store.Set(ctx, key, t.marker(markerDone), t.processedTTL)
}

// Release drops a claim so the next delivery of eventID is applied again.
func (t *Tracker) Release(ctx context.Context, consumer, eventID string) error {
	key, err := t.key(consumer, eventID)
	if err != nil {
		return err
	}
	return t.store.Del(ctx, key)
}

func (t *Tracker) marker(state string) string {
	return state + t.now().UTC().Format(time.RFC3339)
}

func (t *Tracker) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", ErrConsumerRequired
	case eventID == "":
		return "", ErrEventIDRequired
	}
	return t.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}
