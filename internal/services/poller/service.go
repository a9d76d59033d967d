// Package poller keeps host statuses fresh in the background.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/wakehub/internal/metrics"
	"github.com/fgeck/wakehub/internal/models"
	"github.com/fgeck/wakehub/internal/services/probe"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the delay between two cycles when none is configured.
const DefaultInterval = 10 * time.Second

const maxConcurrentProbes = 8

// HostStore is the part of the registry the poller needs. It never touches
// operation locks.
type HostStore interface {
	IDs() []string
	Host(id string) (models.Host, error)
	SetStatus(id string, status models.Status) error
}

// Service defines the interface for the status poller.
type Service interface {
	Run(ctx context.Context) error
	PollOnce(ctx context.Context)
}

// Impl implements the poller Service interface.
type Impl struct {
	store    HostStore
	prober   probe.Service
	interval time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a new status poller.
func New(logger zerolog.Logger, store HostStore, prober probe.Service, interval time.Duration, m *metrics.Metrics) *Impl {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Impl{
		store:    store,
		prober:   prober,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Run polls every host, sleeps for the interval and repeats until ctx is done.
func (s *Impl) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("status poller started")

	for {
		s.PollOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("status poller stopped")
			return nil
		case <-time.After(s.interval):
		}
	}
}

// PollOnce runs a single cycle. A failing probe only affects its own host.
func (s *Impl) PollOnce(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentProbes)

	for _, id := range s.store.IDs() {
		id := id
		g.Go(func() error {
			s.pollHost(ctx, id)
			return nil
		})
	}

	_ = g.Wait()
}

func (s *Impl) pollHost(ctx context.Context, id string) {
	status := models.StatusUnknown

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Err(fmt.Errorf("%v", r)).
				Str("host", id).
				Msg("probe panicked")
			status = models.StatusUnknown
		} else if ctx.Err() != nil {
			return
		}
		if err := s.store.SetStatus(id, status); err != nil {
			s.logger.Warn().Err(err).Str("host", id).Msg("failed to store status")
			return
		}
		s.metrics.StatusObserved(id, status)
	}()

	host, err := s.store.Host(id)
	if err != nil {
		s.logger.Warn().Err(err).Str("host", id).Msg("host disappeared from registry")
		return
	}

	result, err := s.prober.Probe(ctx, host.Address)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("host", id).Msg("probe could not run")
	case result == nil:
		s.logger.Warn().Str("host", id).Msg("probe returned no result")
	case result.Reachable:
		status = models.StatusOnline
	default:
		status = models.StatusOffline
	}
}
