package main

import (
	"context"
	"errors"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// topicPublisher hands out a publisher per topic name. Tests swap in fakes.
type topicPublisher interface {
	Topic(name string) publisher
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type clientTopics struct {
	client pubSubClient
}

func newClientTopics(client pubSubClient) topicPublisher {
	return &clientTopics{client: client}
}

func (c *clientTopics) Topic(name string) publisher {
	p := c.client.Publisher(name)
	if p == nil {
		return nil
	}
	return &gcpPublisher{publisher: p}
}

type gcpPublisher struct {
	publisher *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{result: p.publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	result *gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.result == nil {
		return "", errors.New("publish result is nil")
	}
	return r.result.Get(ctx)
}

// pollBackoff doubles the wait after each failed batch up to max.
type pollBackoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
	rnd     *rand.Rand
}

func newPollBackoff(base, max time.Duration) *pollBackoff {
	return &pollBackoff{
		base:    base,
		max:     max,
		current: base,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *pollBackoff) Fail() time.Duration {
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.jitter(b.current)
}

func (b *pollBackoff) Idle() time.Duration { return b.jitter(b.base) }

func (b *pollBackoff) Reset() { b.current = b.base }

func (b *pollBackoff) jitter(d time.Duration) time.Duration {
	return d + time.Duration(b.rnd.Int63n(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
