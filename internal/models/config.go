// Package models contains the data structures used throughout wakehub.
package models

import "time"

// Probe methods.
const (
	ProbeMethodExec = "exec"
	ProbeMethodICMP = "icmp"
)

// Shutdown strategies.
const (
	StrategyAuto    = "auto"
	StrategyWindows = "windows"
	StrategySSH     = "ssh"
)

// Remote operating systems, used to pick the command sent over SSH.
const (
	OSLinux   = "linux"
	OSWindows = "windows"
)

// AppConfig holds the complete configuration for a wakehub process.
type AppConfig struct {
	Server   ServerConfig
	Timing   TimingConfig
	Probe    ProbeConfig
	WOL      WOLConfig
	Shutdown ShutdownConfig
	Hosts    []Host
	Telegram *TelegramConfig // nil if not configured
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string
}

// TimingConfig holds the global timing constants.
type TimingConfig struct {
	PollInterval   time.Duration // delay between two polling cycles
	WakeSettle     time.Duration // wait after a magic packet before re-probing
	ShutdownSettle time.Duration // wait after a shutdown command before re-probing
	CommandTimeout time.Duration // hard limit for a remote shutdown command
	ProbeTimeout   time.Duration // hard limit for a single liveness probe
}

// ProbeConfig selects how liveness is checked.
type ProbeConfig struct {
	Method     string // "exec" (default) or "icmp"
	Privileged bool   // icmp only: use a raw socket instead of an unprivileged one
}

// WOLConfig holds Wake-on-LAN transmission settings.
type WOLConfig struct {
	BroadcastAddress string // host:port, default 255.255.255.255:9
}

// ShutdownConfig holds remote power-off settings shared by all hosts.
type ShutdownConfig struct {
	Strategy   string // "auto" (default), "windows" or "ssh"
	Username   string // default username when a host omits its own
	Password   string // default secret when a host omits its own
	SSHPort    int
	KeyPath    string // private key for key-based SSH auth
	KnownHosts string // optional known_hosts file; host keys are not checked when empty
	UseAgent   bool   // also offer keys held by ssh-agent
}
