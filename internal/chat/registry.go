package chat

import (
	"sync"

	"github.com/shopdesk/supportchat/internal/model"
)

// Registry maps principals to their live connection, one per principal.
// A newer connection replaces the older mapping; the older socket stays open
// but stops receiving principal-addressed events.
type Registry struct {
	mu        sync.RWMutex
	customers map[int64]*Conn
	staff     map[int64]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		customers: make(map[int64]*Conn),
		staff:     make(map[int64]*Conn),
	}
}

func (r *Registry) partition(kind model.PrincipalKind) map[int64]*Conn {
	if kind == model.KindStaff {
		return r.staff
	}
	return r.customers
}

// Register stores c and returns the connection it replaced, if any.
func (r *Registry) Register(c *Conn) (replaced *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.partition(c.Principal.Kind)
	if old, ok := m[c.Principal.ID]; ok && old != c {
		replaced = old
	}
	m[c.Principal.ID] = c
	return replaced
}

// Unregister removes c only while it is still the stored connection, so a late
// disconnect of a replaced socket leaves the newer one in place.
func (r *Registry) Unregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.partition(c.Principal.Kind)
	if m[c.Principal.ID] != c {
		return false
	}
	delete(m, c.Principal.ID)
	return true
}

func (r *Registry) ConnectionFor(id int64, kind model.PrincipalKind) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.partition(kind)[id]
}

// Staff returns a snapshot of connected staff.
func (r *Registry) Staff() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.staff))
	for _, c := range r.staff {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Count(kind model.PrincipalKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.partition(kind))
}
