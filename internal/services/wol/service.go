// Package wol provides Wake-on-LAN operations.
package wol

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// DefaultBroadcastAddress is the limited broadcast address on the discard port.
const DefaultBroadcastAddress = "255.255.255.255:9"

// PacketSize is the length of a magic packet without password. The send path
// leaves framing to mdlayher/wol; PacketSize and BuildPacket let callers check
// what goes on the wire.
const PacketSize = 6 + 16*6

// ErrInvalidMAC is returned for hardware addresses that are not 12 hex digits,
// optionally separated by ':' or '-' after every octet.
var ErrInvalidMAC = errors.New("invalid MAC address")

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, mac string) (*models.WakeResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(addr string, mac net.HardwareAddr) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake broadcasts a magic packet for mac to addr.
func (c *DefaultClient) Wake(addr string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(addr, mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	broadcast string
	logger    zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger, cfg models.WOLConfig) *Impl {
	return NewWithClient(logger, cfg, &DefaultClient{})
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, cfg models.WOLConfig, wolClient Client) *Impl {
	broadcast := cfg.BroadcastAddress
	if broadcast == "" {
		broadcast = DefaultBroadcastAddress
	}
	return &Impl{
		wolClient: wolClient,
		broadcast: broadcast,
		logger:    logger,
	}
}

// Wake validates mac and broadcasts a single magic packet for it. Invalid
// addresses are reported in the result without touching the network.
func (s *Impl) Wake(ctx context.Context, mac string) (*models.WakeResult, error) {
	result := &models.WakeResult{Broadcast: s.broadcast}

	hw, err := ParseMAC(mac)
	if err != nil {
		result.Error = err
		return result, nil
	}
	result.MAC = formatMAC(hw)

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result, nil
	}

	s.logger.Info().
		Str("mac", result.MAC).
		Str("broadcast", s.broadcast).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(s.broadcast, hw); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.PacketSent = true
	s.logger.Debug().Str("mac", result.MAC).Msg("WOL packet sent")

	return result, nil
}

// ParseMAC parses a 12 digit hardware address. Separated forms must be 17
// characters long with the same ':' or '-' at positions 2, 5, 8, 11 and 14.
func ParseMAC(s string) (net.HardwareAddr, error) {
	var digits string

	switch len(s) {
	case 12:
		digits = s
	case 17:
		sep := s[2]
		if sep != ':' && sep != '-' {
			return nil, fmt.Errorf("%w %q: unexpected separator", ErrInvalidMAC, s)
		}
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			if i%3 == 2 {
				if s[i] != sep {
					return nil, fmt.Errorf("%w %q: separator expected at position %d", ErrInvalidMAC, s, i)
				}
				continue
			}
			b.WriteByte(s[i])
		}
		digits = b.String()
	default:
		return nil, fmt.Errorf("%w %q: length %d", ErrInvalidMAC, s, len(s))
	}

	raw, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidMAC, s, err)
	}

	return net.HardwareAddr(raw), nil
}

// NormalizeMAC returns mac as 12 upper-case hex digits.
func NormalizeMAC(mac string) (string, error) {
	hw, err := ParseMAC(mac)
	if err != nil {
		return "", err
	}
	return formatMAC(hw), nil
}

// BuildPacket returns the 102 byte magic packet for mac, as sent by Wake.
func BuildPacket(mac net.HardwareAddr) ([]byte, error) {
	p := &wol.MagicPacket{Target: mac}
	b, err := p.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMAC, err)
	}
	return b, nil
}

func formatMAC(hw net.HardwareAddr) string {
	return strings.ToUpper(hex.EncodeToString(hw))
}
