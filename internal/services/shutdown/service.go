// Package shutdown dispatches remote power-off commands.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a remote shutdown command when none is configured.
const DefaultTimeout = 5 * time.Second

// ErrNoAuth is returned when no usable SSH authentication method exists.
var ErrNoAuth = errors.New("no SSH authentication method available")

// Service defines the interface for remote shutdown operations.
type Service interface {
	Shutdown(ctx context.Context, host models.Host) (*models.ShutdownResult, error)
}

// Strategy is one way of powering off a remote host. Implementations must
// return as soon as ctx is done.
type Strategy interface {
	Name() string
	Shutdown(ctx context.Context, host models.Host) *models.ShutdownResult
}

// Dispatcher runs the strategy chosen at startup under a context deadline.
// The deadline only holds if the strategy honours ctx.
type Dispatcher struct {
	strategy Strategy
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a dispatcher whose strategy is chosen from cfg and the OS this
// process runs on.
func New(logger zerolog.Logger, cfg models.ShutdownConfig, timeout time.Duration) *Dispatcher {
	var strategy Strategy
	switch ResolveStrategy(cfg.Strategy, runtime.GOOS) {
	case models.StrategyWindows:
		strategy = NewWindows(logger)
	default:
		strategy = NewSSH(logger, cfg, timeout)
	}
	return NewWithStrategy(logger, strategy, timeout)
}

// NewWithStrategy creates a dispatcher with a custom strategy (for testing).
func NewWithStrategy(logger zerolog.Logger, strategy Strategy, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		strategy: strategy,
		timeout:  timeout,
		logger:   logger,
	}
}

// ResolveStrategy maps a configured strategy to a concrete one. "auto" picks
// the Windows native commands when running on Windows and SSH elsewhere.
func ResolveStrategy(configured, goos string) string {
	switch configured {
	case models.StrategyWindows, models.StrategySSH:
		return configured
	}
	if goos == "windows" {
		return models.StrategyWindows
	}
	return models.StrategySSH
}

// Strategy returns the name of the selected strategy.
func (d *Dispatcher) Strategy() string {
	return d.strategy.Name()
}

// Shutdown powers off host. Every failure, including a panic in the strategy,
// is reported through the result; the returned error is always nil.
func (d *Dispatcher) Shutdown(ctx context.Context, host models.Host) (result *models.ShutdownResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = &models.ShutdownResult{
				Strategy: d.strategy.Name(),
				Error:    fmt.Errorf("shutdown strategy panicked: %v", r),
			}
			d.logger.Error().Err(result.Error).Str("host", host.ID).Msg("remote shutdown failed")
		}
	}()

	d.logger.Info().
		Str("host", host.ID).
		Str("address", host.Address).
		Str("strategy", d.strategy.Name()).
		Dur("timeout", d.timeout).
		Msg("initiating remote shutdown")

	result = d.strategy.Shutdown(ctx, host)
	if result == nil {
		result = &models.ShutdownResult{Strategy: d.strategy.Name()}
	}
	if !result.Success && result.Error == nil {
		result.Error = fmt.Errorf("shutdown of %s did not succeed", host.Address)
	}

	if result.Error != nil {
		d.logger.Warn().
			Err(result.Error).
			Str("host", host.ID).
			Bool("command_run", result.CommandRun).
			Str("output", result.Output).
			Msg("remote shutdown failed")
		return result, nil
	}

	d.logger.Info().
		Str("host", host.ID).
		Str("output", result.Output).
		Msg("shutdown command completed")

	return result, nil
}
