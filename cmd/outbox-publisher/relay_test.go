package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox"
	"github.com/angelmondragon/stockledger-backend/pkg/outbox/registry"
)

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestDrainOnceKeepsGoingAfterTransientFailure(t *testing.T) {
	first := outboxRow(t, enums.EventStockLevelChanged, 0)
	second := outboxRow(t, enums.EventStockLevelChanged, 0)
	repo := &fakeRepo{rows: []models.OutboxEvent{first, second}}
	topics := &fakeTopics{results: []error{errors.New("unavailable"), nil}}
	relay := newTestRelay(t, repo, topics, &fakeRegistry{topic: "stock"}, &fakeDLQ{}, config.OutboxConfig{})

	claimed, err := relay.drainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, claimed)
	require.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	require.Equal(t, []uuid.UUID{second.ID}, repo.published)
}

func TestDrainOnceFansStockLevelOutToAnalytics(t *testing.T) {
	row := outboxRow(t, enums.EventStockLevelChanged, 0)
	repo := &fakeRepo{rows: []models.OutboxEvent{row}}
	topics := &fakeTopics{}
	reg := &fakeRegistry{topic: "stock", fanOut: []string{"analytics"}}
	relay := newTestRelay(t, repo, topics, reg, &fakeDLQ{}, config.OutboxConfig{})

	_, err := relay.drainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"stock", "analytics"}, topics.requested)
	require.Len(t, topics.messages, 2)
	require.Equal(t, "stock_level_changed", topics.messages[1].Attributes["event_type"])
	require.Equal(t, row.AggregateID.String(), topics.messages[1].Attributes["aggregate_id"])
	require.Equal(t, []uuid.UUID{row.ID}, repo.published)
}

func TestDrainOnceFailsRowWhenFanOutTopicFails(t *testing.T) {
	row := outboxRow(t, enums.EventStockLevelChanged, 0)
	repo := &fakeRepo{rows: []models.OutboxEvent{row}}
	topics := &fakeTopics{results: []error{nil, errors.New("analytics down")}}
	reg := &fakeRegistry{topic: "stock", fanOut: []string{"analytics"}}
	relay := newTestRelay(t, repo, topics, reg, &fakeDLQ{}, config.OutboxConfig{})

	_, err := relay.drainOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, repo.published)
	require.Equal(t, []uuid.UUID{row.ID}, repo.failed)
}

func TestDrainOnceDeadLettersUnresolvableRow(t *testing.T) {
	row := outboxRow(t, enums.EventDocumentCommitted, 0)
	repo := &fakeRepo{rows: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	relay := newTestRelay(t, repo, &fakeTopics{}, reg, dlq, config.OutboxConfig{})

	_, err := relay.drainOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	require.Equal(t, row.ID, entry.EventID)
	require.Equal(t, enums.OutboxDLQReasonUndecodable, entry.ErrorReason)
	require.True(t, bytes.Equal(row.Payload, entry.Payload))
	require.Equal(t, fixedNow, entry.FailedAt)
	require.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
}

func TestDrainOnceDeadLettersAfterMaxAttempts(t *testing.T) {
	row := outboxRow(t, enums.EventDocumentCommitted, 1)
	repo := &fakeRepo{rows: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	topics := &fakeTopics{results: []error{errors.New("unavailable")}}
	relay := newTestRelay(t, repo, topics, &fakeRegistry{topic: "documents"}, dlq, config.OutboxConfig{MaxAttempts: 2})

	_, err := relay.drainOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	require.Empty(t, repo.failed)
}

func TestDrainOnceDeadLettersUnknownTopic(t *testing.T) {
	row := outboxRow(t, enums.EventDocumentCommitted, 0)
	repo := &fakeRepo{rows: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	topics := &fakeTopics{missing: map[string]bool{"documents": true}}
	relay := newTestRelay(t, repo, topics, &fakeRegistry{topic: "documents"}, dlq, config.OutboxConfig{})

	_, err := relay.drainOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
}

func TestDrainOnceRecordsOutcomeMetrics(t *testing.T) {
	repo := &fakeRepo{rows: []models.OutboxEvent{outboxRow(t, enums.EventDocumentCommitted, 0)}}
	topics := &fakeTopics{results: []error{errors.New("transient")}}
	relay := newTestRelay(t, repo, topics, &fakeRegistry{topic: "documents"}, &fakeDLQ{}, config.OutboxConfig{})
	reg := prometheus.NewRegistry()
	relay.metrics = metrics.NewLedgerMetrics(reg)

	_, err := relay.drainOnce(context.Background())
	require.NoError(t, err)
	expected := `
# HELP stockledger_outbox_events_total Outbox relay results by event type and outcome.
# TYPE stockledger_outbox_events_total counter
stockledger_outbox_events_total{event_type="document_committed",outcome="retried"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, bytes.NewBufferString(expected), "stockledger_outbox_events_total"))
}

func TestDrainOnceReportsFetchError(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("db down")}
	relay := newTestRelay(t, repo, &fakeTopics{}, &fakeRegistry{topic: "stock"}, &fakeDLQ{}, config.OutboxConfig{})

	claimed, err := relay.drainOnce(context.Background())
	require.Error(t, err)
	require.Zero(t, claimed)
}

func TestNewRelayAppliesDefaults(t *testing.T) {
	relay := newTestRelay(t, &fakeRepo{}, &fakeTopics{}, &fakeRegistry{}, &fakeDLQ{}, config.OutboxConfig{})
	require.Equal(t, defaultBatchSize, relay.batchSize)
	require.Equal(t, defaultMaxAttempts, relay.maxAttempts)
	require.Equal(t, defaultPollInterval, relay.poll)
}

func TestPollBackoffDoublesToCap(t *testing.T) {
	b := newPollBackoff(time.Second, 3*time.Second)
	require.GreaterOrEqual(t, b.Fail(), 2*time.Second)
	wait := b.Fail()
	require.GreaterOrEqual(t, wait, 3*time.Second)
	require.Less(t, wait, 3*time.Second+jitterWindow)
	b.Reset()
	require.Less(t, b.Idle(), time.Second+jitterWindow)
}

func newTestRelay(t *testing.T, repo outboxRepository, topics topicPublisher, reg registryResolver, dlq dlqRepository, cfg config.OutboxConfig) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Outbox:        cfg,
		Logger:        logger.Nop(),
		DB:            fakeDB{},
		PubSub:        fakePubSub{},
		Repository:    repo,
		DLQRepository: dlq,
		Registry:      reg,
		Topics:        topics,
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return relay
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: fixedNow,
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateStockBalance,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     fixedNow,
	}
}

type fakeRepo struct {
	rows      []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.rows, f.fetchErr
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeRegistry struct {
	topic  string
	fanOut []string
	err    error
}

func (f *fakeRegistry) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			Topic:         f.topic,
			FanOutTopics:  f.fanOut,
		},
		Envelope: outbox.PayloadEnvelope{EventID: row.ID.String(), OccurredAt: fixedNow},
	}, nil
}

// fakeTopics returns one publish result per call in order; a nil entry or an
// exhausted list means success.
type fakeTopics struct {
	results   []error
	missing   map[string]bool
	requested []string
	messages  []*gcppubsub.Message
}

func (f *fakeTopics) Topic(name string) publisher {
	f.requested = append(f.requested, name)
	if f.missing[name] {
		return nil
	}
	return f
}

func (f *fakeTopics) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	var err error
	if len(f.results) > 0 {
		err = f.results[0]
		f.results = f.results[1:]
	}
	return fakeResult{err: err}
}

type fakeResult struct{ err error }

func (f fakeResult) Get(context.Context) (string, error) { return "server-id", f.err }

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error { return nil }

func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }
