package registry

import (
	"sync"
	"time"

	"github.com/trafficdeck/trafficdeck/internal/domain"
)

// Registry is the single in-memory source of truth for service state.
//
// It is mutated only by inbound frames (full replaces, single-service
// updates) and read by everything else through deep-copied snapshots, so a
// reader can never observe a record mid-apply and an editor can never
// mutate registry state through an aliased slice.
type Registry struct {
	mu          sync.RWMutex
	order       []string // display order of service keys
	records     map[string]*domain.ServiceRecord
	lastApplied time.Time
	subs        []chan struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]*domain.ServiceRecord),
	}
}

// ApplyFull replaces the entire registry contents with records, preserving
// their order as the new display order. A service absent from records is
// dropped. Duplicate keys keep their first position; the last record wins.
func (r *Registry) ApplyFull(records []domain.ServiceRecord) {
	r.mu.Lock()

	r.order = make([]string, 0, len(records))
	r.records = make(map[string]*domain.ServiceRecord, len(records))
	for _, rec := range records {
		if rec.Service == "" {
			continue
		}
		clone := rec.Clone()
		if _, seen := r.records[rec.Service]; !seen {
			r.order = append(r.order, rec.Service)
		}
		r.records[rec.Service] = &clone
	}
	r.lastApplied = time.Now()

	r.mu.Unlock()
	r.notify()
}

// ApplyUpdate upserts a single service. For a known key only the backend
// list is replaced; status, updatedAt and totalTraffic are touched only
// when the incoming record carries them, so sparse update frames never
// null out fields. An unknown key is appended at the end of the display
// order.
func (r *Registry) ApplyUpdate(record domain.ServiceRecord) {
	if record.Service == "" {
		return
	}

	r.mu.Lock()

	if existing, ok := r.records[record.Service]; ok {
		existing.Backends = domain.CloneBackends(record.Backends)
		if record.Status != "" {
			existing.Status = record.Status
		}
		if record.UpdatedAt != "" {
			existing.UpdatedAt = record.UpdatedAt
		}
		if record.TotalTraffic != "" {
			existing.TotalTraffic = record.TotalTraffic
		}
	} else {
		clone := record.Clone()
		r.records[record.Service] = &clone
		r.order = append(r.order, record.Service)
	}
	r.lastApplied = time.Now()

	r.mu.Unlock()
	r.notify()
}

// Snapshot returns the current records in display order as deep copies.
func (r *Registry) Snapshot() []domain.ServiceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ServiceRecord, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key].Clone())
	}
	return out
}

// Get returns a deep copy of one record by service key.
func (r *Registry) Get(service string) (domain.ServiceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[service]
	if !ok {
		return domain.ServiceRecord{}, false
	}
	return rec.Clone(), true
}

// Count returns the number of services in the registry.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}

// LastApplied returns the time of the last successful apply, zero if none.
func (r *Registry) LastApplied() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastApplied
}

// Subscribe returns a channel that receives a signal after every apply.
// The channel has capacity one and signals coalesce: a slow consumer sees
// at least one signal for any burst of applies and re-reads Snapshot.
func (r *Registry) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()

	return ch
}

func (r *Registry) notify() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
