package models

// Status is the liveness state of a host.
type Status string

// Host statuses.
const (
	StatusUnknown      Status = "unknown"
	StatusOnline       Status = "online"
	StatusOffline      Status = "offline"
	StatusWaking       Status = "waking"
	StatusShuttingDown Status = "shuttingdown"
)

// Credentials are used to authenticate remote shutdown commands.
type Credentials struct {
	Username string
	Secret   string
}

// HasSecret reports whether a password is configured.
func (c Credentials) HasSecret() bool {
	return c.Secret != ""
}

// Host is the immutable part of a configured host.
type Host struct {
	ID          string
	Name        string
	MAC         string // 12 upper-case hex digits, no separators
	Address     string // IPv4 address or hostname
	OS          string // remote OS, "linux" (default) or "windows"
	Credentials Credentials
}

// HostSnapshot is a read-only view of a host and its current status.
type HostSnapshot struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	MAC     string `json:"mac"`
	Address string `json:"ip"`
	Status  Status `json:"status"`
	Busy    bool   `json:"busy"`
}
