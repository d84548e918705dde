// Package registry holds the bridge's long-lived shared state: the cache of
// remote destination references, tracked links, and attached transports.
// It is the only mutable state shared between the command path and the
// stack's callback path, and every access goes through the registry mutex.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

var (
	// ErrDuplicateTransport is returned when attaching a handle that is
	// already attached. Existing state is left untouched.
	ErrDuplicateTransport = errors.New("duplicate transport handle")
	// ErrTransportNotFound is returned when detaching or inspecting a
	// handle that is not attached.
	ErrTransportNotFound = errors.New("transport not found")
)

// TransportRecord describes one attached transport as tracked by the bridge.
// Live counters come from the stack, not from this record.
type TransportRecord struct {
	// Type names the transport driver, currently always "rnode".
	Type string

	// Port is the transport handle, for example a serial device path.
	Port string

	// Config is the transport configuration, with defaults applied.
	Config meshstack.TransportConfig
}

// Registry is a mutex-guarded container for the bridge's maps. Destination
// and link keys are normalized lowercase hex address hashes; callers pass
// already-normalized hashes. The mutex is held only for the duration of a
// map operation, never across network calls.
type Registry struct {
	mu         sync.RWMutex
	remotes    map[string]meshstack.Destination
	links      map[string]meshstack.Link
	transports map[string]TransportRecord
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		remotes:    make(map[string]meshstack.Destination),
		links:      make(map[string]meshstack.Link),
		transports: make(map[string]TransportRecord),
	}
}

// Remote returns the cached remote destination for an address hash.
func (r *Registry) Remote(hash string) (meshstack.Destination, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dest, ok := r.remotes[hash]
	return dest, ok
}

// AddRemote caches a remote destination reference keyed by its address hash.
// Entries are never evicted; the cache lives as long as the process.
func (r *Registry) AddRemote(dest meshstack.Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[dest.Hash] = dest
}

// RemoteCount reports the number of cached remote destinations.
func (r *Registry) RemoteCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.remotes)
}

// RecordLink tracks an established link keyed by the peer's address hash.
// At most one link is tracked per peer; the most recent establishment
// replaces any prior record.
func (r *Registry) RecordLink(link meshstack.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[link.DestinationHash] = link
}

// Link returns the tracked link for a peer address hash.
func (r *Registry) Link(hash string) (meshstack.Link, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.links[hash]
	return link, ok
}

// AddTransport tracks a newly attached transport. Attaching a handle that
// already exists is rejected with ErrDuplicateTransport and does not alter
// the existing record.
func (r *Registry) AddTransport(rec TransportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[rec.Port]; exists {
		return ErrDuplicateTransport
	}
	r.transports[rec.Port] = rec
	return nil
}

// RemoveTransport stops tracking the transport attached under port.
func (r *Registry) RemoveTransport(port string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[port]; !exists {
		return ErrTransportNotFound
	}
	delete(r.transports, port)
	return nil
}

// Transport returns the tracked record for a handle.
func (r *Registry) Transport(port string) (TransportRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.transports[port]
	if !ok {
		return TransportRecord{}, ErrTransportNotFound
	}
	return rec, nil
}

// Transports returns all tracked transports, ordered by handle for stable
// enumeration.
func (r *Registry) Transports() []TransportRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := make([]TransportRecord, 0, len(r.transports))
	for _, rec := range r.transports {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Port < records[j].Port })
	return records
}
