package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
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

// ExecProber sends one echo request with the system ping command.
type ExecProber struct {
	executor CommandExecutor
	timeout  time.Duration
	goos     string
	logger   zerolog.Logger
}

// NewExec creates a prober using the system ping command.
func NewExec(logger zerolog.Logger, timeout time.Duration) *ExecProber {
	return NewExecWithExecutor(logger, timeout, &DefaultExecutor{}, runtime.GOOS)
}

// NewExecWithExecutor creates a prober with a custom executor and target OS (for testing).
func NewExecWithExecutor(logger zerolog.Logger, timeout time.Duration, executor CommandExecutor, goos string) *ExecProber {
	return &ExecProber{
		executor: executor,
		timeout:  normalizeTimeout(timeout),
		goos:     goos,
		logger:   logger,
	}
}

// Probe pings address once.
func (p *ExecProber) Probe(ctx context.Context, address string) (*models.ProbeResult, error) {
	result := &models.ProbeResult{Address: address}
	start := time.Now()

	if err := ValidateAddress(address); err != nil {
		result.Error = err
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	output, err := p.executor.Execute(ctx, "ping", pingArgs(p.goos, address, p.timeout)...)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		// Windows ping exits 0 on "destination unreachable" replies from a router.
		if p.goos == "windows" && !strings.Contains(strings.ToUpper(string(output)), "TTL=") {
			result.Error = fmt.Errorf("no echo reply from %s", address)
			break
		}
		result.Reachable = true
	case ctx.Err() != nil:
		result.Error = fmt.Errorf("ping %s timed out after %s: %w", address, p.timeout, ctx.Err())
	case errors.Is(err, exec.ErrNotFound):
		result.Error = fmt.Errorf("running ping: %w", err)
		p.logger.Error().Err(err).Msg("ping command unavailable")
		return result, result.Error
	default:
		result.Error = fmt.Errorf("no reply from %s: %w", address, err)
	}

	p.logger.Debug().
		Str("address", address).
		Bool("reachable", result.Reachable).
		Dur("duration", result.Duration).
		AnErr("cause", result.Error).
		Msg("probe finished")

	return result, nil
}

func pingArgs(goos, address string, timeout time.Duration) []string {
	secs := strconv.Itoa(int(math.Max(1, math.Ceil(timeout.Seconds()))))

	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), address}
	case "darwin", "freebsd", "netbsd", "openbsd":
		return []string{"-c", "1", "-t", secs, address}
	default:
		return []string{"-c", "1", "-W", secs, address}
	}
}
