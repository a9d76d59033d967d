package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const echoPayload = "wakehub"

// ICMPProber sends one echo request from inside the process.
type ICMPProber struct {
	timeout    time.Duration
	privileged bool
	seq        atomic.Uint32
	logger     zerolog.Logger
}

// NewICMP creates an in-process ICMP prober. Unprivileged probers need the
// net.ipv4.ping_group_range sysctl to cover the process group on Linux.
func NewICMP(logger zerolog.Logger, timeout time.Duration, privileged bool) *ICMPProber {
	return &ICMPProber{
		timeout:    normalizeTimeout(timeout),
		privileged: privileged,
		logger:     logger,
	}
}

// Probe sends an ICMP echo request to address and waits for the matching reply.
func (p *ICMPProber) Probe(ctx context.Context, address string) (*models.ProbeResult, error) {
	result := &models.ProbeResult{Address: address}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if err := ValidateAddress(address); err != nil {
		result.Error = err
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", address)
	if err != nil || len(ips) == 0 {
		result.Error = fmt.Errorf("resolving %s: %w", address, err)
		return result, nil
	}
	ip := ips[0]

	network := "udp4"
	if p.privileged {
		network = "ip4:icmp"
	}
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		result.Error = fmt.Errorf("opening ICMP socket: %w", err)
		p.logger.Error().Err(err).Str("network", network).Msg("ICMP socket unavailable")
		return result, result.Error
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: []byte(echoPayload),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		result.Error = fmt.Errorf("building echo request: %w", err)
		return result, nil
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if !p.privileged {
		dst = &net.UDPAddr{IP: ip}
	}
	if _, err := conn.WriteTo(wb, dst); err != nil {
		result.Error = fmt.Errorf("sending echo request to %s: %w", address, err)
		return result, nil
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			result.Error = fmt.Errorf("no reply from %s: %w", address, err)
			return result, nil
		}
		if isEchoReply(rb[:n], peer, ip, seq) {
			result.Reachable = true
			return result, nil
		}
	}
}

// isEchoReply matches on sequence number and peer only: unprivileged sockets
// have their echo identifier rewritten by the kernel.
func isEchoReply(b []byte, peer net.Addr, ip net.IP, seq int) bool {
	rm, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), b)
	if err != nil || rm.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := rm.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}

	var from net.IP
	switch a := peer.(type) {
	case *net.IPAddr:
		from = a.IP
	case *net.UDPAddr:
		from = a.IP
	}
	return from.Equal(ip)
}
