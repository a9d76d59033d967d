package shutdown

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/rs/zerolog"
)

// commandWaitDelay bounds how long a killed command may keep its output open.
const commandWaitDelay = 500 * time.Millisecond

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = commandWaitDelay
	return cmd.CombinedOutput()
}

// WindowsStrategy uses the native "net use" and "shutdown /m" commands.
type WindowsStrategy struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// NewWindows creates the Windows native strategy.
func NewWindows(logger zerolog.Logger) *WindowsStrategy {
	return NewWindowsWithExecutor(logger, &DefaultExecutor{})
}

// NewWindowsWithExecutor creates the Windows strategy with a custom executor (for testing).
func NewWindowsWithExecutor(logger zerolog.Logger, executor CommandExecutor) *WindowsStrategy {
	return &WindowsStrategy{
		executor: executor,
		logger:   logger,
	}
}

// Name implements Strategy.
func (s *WindowsStrategy) Name() string {
	return models.StrategyWindows
}

// Shutdown connects to the IPC$ share when a secret is configured, then forces
// an immediate remote power-off. A failed share connection is not fatal: the
// shutdown may still be authorized through an existing trust relationship.
func (s *WindowsStrategy) Shutdown(ctx context.Context, host models.Host) *models.ShutdownResult {
	result := &models.ShutdownResult{Strategy: s.Name()}
	target := `\\` + host.Address

	if host.Credentials.HasSecret() {
		result.ShareAttempted = true
		// "net use" only takes the password as an argument; it is never logged.
		args := []string{"use", target + `\IPC$`, host.Credentials.Secret}
		if host.Credentials.Username != "" {
			args = append(args, "/user:"+host.Credentials.Username)
		}
		output, err := s.executor.Execute(ctx, "net", args...)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("address", host.Address).
				Str("output", string(output)).
				Msg("share connection failed, continuing with shutdown")
		} else {
			result.ShareConnected = true
		}
	}

	s.logger.Debug().Str("address", host.Address).Msg("executing remote shutdown command")

	output, err := s.executor.Execute(ctx, "shutdown", "/s", "/f", "/t", "0", "/m", target)
	result.Output = string(output)
	result.CommandRun = true

	if err != nil {
		if ctx.Err() != nil {
			result.Error = fmt.Errorf("shutdown command timed out: %w", ctx.Err())
		} else {
			result.Error = fmt.Errorf("shutdown command failed: %w", err)
		}
		return result
	}

	result.Success = true
	return result
}
