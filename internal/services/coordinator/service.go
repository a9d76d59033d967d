// Package coordinator runs wake and shutdown operations for single hosts.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fgeck/wakehub/internal/metrics"
	"github.com/fgeck/wakehub/internal/models"
	"github.com/fgeck/wakehub/internal/services/probe"
	"github.com/fgeck/wakehub/internal/services/shutdown"
	"github.com/fgeck/wakehub/internal/services/telegram"
	"github.com/fgeck/wakehub/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

const notifyTimeout = 15 * time.Second

// Rejection causes.
var (
	ErrUnknownHost      = errors.New("unknown host")
	ErrHostBusy         = errors.New("operation already in progress")
	ErrUnknownOperation = errors.New("unknown operation")
)

// HostStore is the part of the registry the coordinator needs.
type HostStore interface {
	Host(id string) (models.Host, error)
	SetStatus(id string, status models.Status) error
	TryAcquire(id string) bool
	Release(id string)
}

// Service defines the interface for the operation coordinator.
type Service interface {
	RequestOperation(hostID string, kind models.OperationKind) models.OperationResponse
	Wait()
}

// Impl implements the coordinator Service interface.
type Impl struct {
	store       HostStore
	wolSvc      wol.Service
	shutdownSvc shutdown.Service
	prober      probe.Service
	telegramSvc telegram.Service
	telegramCfg *models.TelegramConfig
	timing      models.TimingConfig
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

type operation struct {
	id    string
	kind  models.OperationKind
	host  models.Host
	start time.Time
}

// New creates a coordinator with the default services for cfg.
func New(logger zerolog.Logger, cfg models.AppConfig, store HostStore, prober probe.Service, m *metrics.Metrics) *Impl {
	return NewWithServices(
		logger,
		store,
		wol.New(logger, cfg.WOL),
		shutdown.New(logger, cfg.Shutdown, cfg.Timing.CommandTimeout),
		prober,
		telegram.New(logger),
		cfg.Telegram,
		cfg.Timing,
		m,
	)
}

// NewWithServices creates a coordinator with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	store HostStore,
	wolSvc wol.Service,
	shutdownSvc shutdown.Service,
	prober probe.Service,
	telegramSvc telegram.Service,
	telegramCfg *models.TelegramConfig,
	timing models.TimingConfig,
	m *metrics.Metrics,
) *Impl {
	return &Impl{
		store:       store,
		wolSvc:      wolSvc,
		shutdownSvc: shutdownSvc,
		prober:      prober,
		telegramSvc: telegramSvc,
		telegramCfg: telegramCfg,
		timing:      timing,
		metrics:     m,
		logger:      logger,
	}
}

// RequestOperation takes the host's operation lock, marks the host as waking
// or shutting down and continues in the background. It never blocks on the
// power operation itself. Requests for unknown or busy hosts are rejected
// without touching any state.
func (s *Impl) RequestOperation(hostID string, kind models.OperationKind) models.OperationResponse {
	var pending models.Status
	var message string

	switch kind {
	case models.OperationWake:
		pending, message = models.StatusWaking, "sending magic packet"
	case models.OperationShutdown:
		pending, message = models.StatusShuttingDown, "shutting down"
	default:
		return reject(ErrUnknownOperation, fmt.Sprintf("unknown operation %q", kind))
	}

	host, err := s.store.Host(hostID)
	if err != nil {
		s.metrics.OperationRequested(kind, metrics.OutcomeUnknownHost)
		return reject(ErrUnknownHost, fmt.Sprintf("host %q is not configured", hostID))
	}

	if !s.store.TryAcquire(hostID) {
		s.metrics.OperationRequested(kind, metrics.OutcomeBusy)
		s.logger.Info().Str("host", hostID).Str("kind", string(kind)).Msg("operation rejected, host busy")
		return reject(ErrHostBusy, fmt.Sprintf("an operation is already in progress for %q", hostID))
	}

	_ = s.store.SetStatus(hostID, pending)
	s.metrics.StatusObserved(hostID, pending)
	s.metrics.OperationRequested(kind, metrics.OutcomeAccepted)

	op := operation{
		id:    ksuid.New().String(),
		kind:  kind,
		host:  host,
		start: time.Now(),
	}

	s.logger.Info().
		Str("operation_id", op.id).
		Str("host", hostID).
		Str("kind", string(kind)).
		Msg("operation accepted")

	s.wg.Add(1)
	go s.run(op)

	return models.OperationResponse{
		Accepted:    true,
		Message:     message,
		OperationID: op.id,
	}
}

// Wait blocks until every background operation has finished.
func (s *Impl) Wait() {
	s.wg.Wait()
}

func (s *Impl) run(op operation) {
	logger := s.logger.With().
		Str("operation_id", op.id).
		Str("host", op.host.ID).
		Str("kind", string(op.kind)).
		Logger()

	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Err(fmt.Errorf("%v", r)).Msg("operation aborted")
		}
	}()

	ctx := context.Background()

	final, dispatchErr := s.execute(ctx, op, logger)

	logger.Info().
		Str("status", string(final)).
		Dur("duration", time.Since(op.start)).
		AnErr("dispatch_error", dispatchErr).
		Msg("operation finished")

	s.notify(ctx, op, final, dispatchErr, logger)
}

// execute runs the locked part of an operation. The host lock is released
// exactly once, when execute returns and before any notice is sent.
func (s *Impl) execute(ctx context.Context, op operation, logger zerolog.Logger) (final models.Status, dispatchErr error) {
	final = models.StatusOffline
	defer s.store.Release(op.host.ID)

	dispatchErr = s.dispatch(ctx, op, logger)

	settle := s.timing.WakeSettle
	if op.kind == models.OperationShutdown {
		settle = s.timing.ShutdownSettle
	}
	time.Sleep(settle)

	final = s.reprobe(ctx, op.host, logger)
	_ = s.store.SetStatus(op.host.ID, final)
	s.metrics.StatusObserved(op.host.ID, final)

	return final, dispatchErr
}

// dispatch sends the magic packet or the shutdown command. Failures are
// returned for logging only; the final status comes from the re-probe.
func (s *Impl) dispatch(ctx context.Context, op operation, logger zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
		s.metrics.DispatchFinished(op.kind, err == nil)
		if err != nil {
			logger.Warn().Err(err).Msg("power operation failed")
		}
	}()

	switch op.kind {
	case models.OperationWake:
		result, err := s.wolSvc.Wake(ctx, op.host.MAC)
		if err != nil {
			return err
		}
		if result.Error != nil {
			return result.Error
		}
		if !result.PacketSent {
			return fmt.Errorf("magic packet was not sent")
		}
	case models.OperationShutdown:
		result, err := s.shutdownSvc.Shutdown(ctx, op.host)
		if err != nil {
			return err
		}
		if result.Error != nil {
			return result.Error
		}
	}

	return nil
}

func (s *Impl) reprobe(ctx context.Context, host models.Host, logger zerolog.Logger) (status models.Status) {
	status = models.StatusOffline

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Err(fmt.Errorf("%v", r)).Msg("re-probe panicked")
			status = models.StatusOffline
		}
	}()

	result, err := s.prober.Probe(ctx, host.Address)
	if err != nil {
		logger.Warn().Err(err).Msg("re-probe could not run")
		return status
	}
	if result != nil && result.Reachable {
		status = models.StatusOnline
	}
	return status
}

func (s *Impl) notify(ctx context.Context, op operation, final models.Status, dispatchErr error, logger zerolog.Logger) {
	if s.telegramSvc == nil || s.telegramCfg == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	notice := models.OperationNotice{
		OperationID: op.id,
		HostID:      op.host.ID,
		HostName:    op.host.Name,
		Kind:        op.kind,
		FinalStatus: final,
		StartTime:   op.start,
		Duration:    time.Since(op.start),
	}
	if dispatchErr != nil {
		notice.Error = dispatchErr.Error()
	}

	result, err := s.telegramSvc.SendNotification(ctx, *s.telegramCfg, notice)
	if err == nil && result != nil {
		err = result.Error
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}

	logger.Debug().Msg("Telegram notification sent")
}

func reject(err error, message string) models.OperationResponse {
	return models.OperationResponse{
		Accepted: false,
		Message:  message,
		Error:    err,
	}
}
