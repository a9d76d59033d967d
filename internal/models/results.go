package models

import "time"

// WakeResult holds the result of a Wake-on-LAN send.
type WakeResult struct {
	MAC        string // normalized hardware address
	Broadcast  string
	PacketSent bool
	Error      error
}

// ProbeResult holds the result of a single liveness check.
type ProbeResult struct {
	Address   string
	Reachable bool
	Duration  time.Duration
	Error     error // cause when not reachable
}

// ShutdownResult holds the result of a remote power-off attempt.
type ShutdownResult struct {
	Strategy       string
	AuthMethod     string // ssh only: "publickey" or "password"
	ShareAttempted bool   // windows only: a share connection was tried first
	ShareConnected bool
	CommandRun     bool
	Success        bool
	Output         string
	Error          error
}
