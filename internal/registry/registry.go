// Package registry holds the in-memory host table shared by the poller and the
// operation coordinator.
package registry

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fgeck/wakehub/internal/models"
)

// ErrNotFound is returned for host ids that were not configured.
var ErrNotFound = errors.New("host not found")

type entry struct {
	host   models.Host
	status atomic.Value // models.Status
	locked atomic.Bool
}

// Registry owns every configured host, its status and its operation lock.
// The set of hosts is fixed at construction, so the map itself is never
// written after New returns and needs no lock.
type Registry struct {
	order   []string
	entries map[string]*entry
}

// New creates a registry for hosts. Every host starts unknown and unlocked.
func New(hosts []models.Host) (*Registry, error) {
	r := &Registry{
		order:   make([]string, 0, len(hosts)),
		entries: make(map[string]*entry, len(hosts)),
	}

	for _, h := range hosts {
		if h.ID == "" {
			return nil, fmt.Errorf("host id is required")
		}
		if _, ok := r.entries[h.ID]; ok {
			return nil, fmt.Errorf("duplicate host id %q", h.ID)
		}
		e := &entry{host: h}
		e.status.Store(models.StatusUnknown)
		r.entries[h.ID] = e
		r.order = append(r.order, h.ID)
	}

	return r, nil
}

// IDs returns the host ids in configuration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Host returns the immutable record of a host, including credentials.
func (r *Registry) Host(id string) (models.Host, error) {
	e, ok := r.entries[id]
	if !ok {
		return models.Host{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.host, nil
}

// Get returns a snapshot of a host.
func (r *Registry) Get(id string) (models.HostSnapshot, error) {
	e, ok := r.entries[id]
	if !ok {
		return models.HostSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.snapshot(), nil
}

// SetStatus stores the status of a host. Last write wins.
func (r *Registry) SetStatus(id string, status models.Status) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.status.Store(status)
	return nil
}

// TryAcquire takes the operation lock of a host. It returns false when the
// lock is already held or the host does not exist.
func (r *Registry) TryAcquire(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	return e.locked.CompareAndSwap(false, true)
}

// Release frees the operation lock of a host. Releasing a free lock or an
// unknown host is a no-op.
func (r *Registry) Release(id string) {
	if e, ok := r.entries[id]; ok {
		e.locked.Store(false)
	}
}

// Locked reports whether an operation is in progress for a host.
func (r *Registry) Locked(id string) bool {
	e, ok := r.entries[id]
	return ok && e.locked.Load()
}

// Snapshot returns the current state of every host keyed by id.
func (r *Registry) Snapshot() map[string]models.HostSnapshot {
	out := make(map[string]models.HostSnapshot, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.snapshot()
	}
	return out
}

func (e *entry) snapshot() models.HostSnapshot {
	return models.HostSnapshot{
		ID:      e.host.ID,
		Name:    e.host.Name,
		MAC:     e.host.MAC,
		Address: e.host.Address,
		Status:  e.status.Load().(models.Status),
		Busy:    e.locked.Load(),
	}
}
