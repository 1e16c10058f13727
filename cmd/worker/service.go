package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type runner interface {
	Run(ctx context.Context) error
}

// check is a named readiness probe run before any consumer starts.
type check struct {
	name string
	ping func(context.Context) error
}

// consumer pairs a subscriber with the name it logs under.
type consumer struct {
	name string
	run  runner
}

// Service runs the order and receipt consumers. When one stops, the rest
// are cancelled and Run returns the first failure.
type Service struct {
	logg      *logger.Logger
	checks    []check
	consumers []consumer
}

func NewService(logg *logger.Logger, checks []check, consumers []consumer) (*Service, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if len(consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for _, c := range consumers {
		if c.run == nil {
			return nil, fmt.Errorf("consumer %s has no runner", c.name)
		}
	}
	return &Service{logg: logg, checks: checks, consumers: consumers}, nil
}

func (s *Service) ready(ctx context.Context) error {
	for _, c := range s.checks {
		if err := c.ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", c.name, err)
		}
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.logg.Info(ctx, "worker dependencies ready")

	group, groupCtx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		group.Go(func() error {
			err := c.run.Run(groupCtx)
			if err == nil {
				// a subscriber only returns nil once its context is done
				return groupCtx.Err()
			}
			if !errors.Is(err, context.Canceled) {
				s.logg.Error(s.logg.WithField(groupCtx, "consumer", c.name), "consumer stopped", err)
			}
			return fmt.Errorf("%s: %w", c.name, err)
		})
	}
	return group.Wait()
}
