// Package probe provides single-shot liveness checks.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a probe when no timeout is configured.
const DefaultTimeout = 2 * time.Second

// ErrInvalidAddress is reported for addresses that cannot be probed safely.
var ErrInvalidAddress = errors.New("invalid address")

// Service defines the interface for liveness probes.
//
// Probe never panics on network failures. An unreachable host yields a result
// with Reachable false and the cause in Error. A non-nil returned error means
// the probe itself could not be carried out (missing tool, socket permission);
// the result is still not reachable in that case.
type Service interface {
	Probe(ctx context.Context, address string) (*models.ProbeResult, error)
}

// New returns the prober selected by cfg.
func New(logger zerolog.Logger, cfg models.ProbeConfig, timeout time.Duration) Service {
	if cfg.Method == models.ProbeMethodICMP {
		return NewICMP(logger, timeout, cfg.Privileged)
	}
	return NewExec(logger, timeout)
}

// ValidateAddress rejects addresses that are empty, contain whitespace or
// could be mistaken for a command line flag.
func ValidateAddress(address string) error {
	switch {
	case address == "":
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	case strings.HasPrefix(address, "-"):
		return fmt.Errorf("%w %q: leading dash", ErrInvalidAddress, address)
	case strings.ContainsAny(address, " \t\r\n"):
		return fmt.Errorf("%w %q: whitespace", ErrInvalidAddress, address)
	}
	return nil
}

func normalizeTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
