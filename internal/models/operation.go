package models

import "time"

// OperationKind is a power operation that can be requested for a host.
type OperationKind string

// Operation kinds.
const (
	OperationWake     OperationKind = "wake"
	OperationShutdown OperationKind = "shutdown"
)

// OperationResponse is returned synchronously to whoever requested an operation.
type OperationResponse struct {
	Accepted    bool   `json:"success"`
	Message     string `json:"message"`
	OperationID string `json:"operation_id,omitempty"`
	Error       error  `json:"-"` // rejection cause, nil when accepted
}

// OperationNotice describes a finished background operation.
type OperationNotice struct {
	OperationID string
	HostID      string
	HostName    string
	Kind        OperationKind
	FinalStatus Status
	StartTime   time.Time
	Duration    time.Duration
	Error       string // dispatch failure, empty on success
}
