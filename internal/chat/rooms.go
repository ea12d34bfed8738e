package chat

import "sync"

// Rooms tracks which connections are subscribed to which room and serializes
// work per room. A connection is subscribed to at most one room.
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[int64]map[*Conn]struct{}

	locksMu sync.Mutex
	locks   map[int64]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[int64]map[*Conn]struct{}),
		locks:  make(map[int64]*roomLock),
	}
}

// Lock acquires the per-room lock and returns its release func.
func (r *Rooms) Lock(roomID int64) func() {
	r.locksMu.Lock()
	l, ok := r.locks[roomID]
	if !ok {
		l = &roomLock{}
		r.locks[roomID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, roomID)
		}
		r.locksMu.Unlock()
	}
}

// Move subscribes c to roomID, dropping its previous subscription.
// Returns the previous room id (0 if none).
func (r *Rooms) Move(c *Conn, roomID int64) (prev int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, _ = c.CurrentRoom()
	if prev != 0 {
		r.removeLocked(c, prev)
	}
	set, ok := r.byRoom[roomID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.byRoom[roomID] = set
	}
	set[c] = struct{}{}
	c.setRoom(roomID)
	return prev
}

// Drop removes c from its room. Returns the room it left (0 if none).
func (r *Rooms) Drop(c *Conn) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := c.CurrentRoom()
	if !ok {
		return 0
	}
	r.removeLocked(c, prev)
	c.setRoom(0)
	return prev
}

// Clear unsubscribes everyone from roomID and returns who was there.
func (r *Rooms) Clear(roomID int64) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byRoom[roomID]
	delete(r.byRoom, roomID)
	out := make([]*Conn, 0, len(set))
	for c := range set {
		c.setRoom(0)
		out = append(out, c)
	}
	return out
}

func (r *Rooms) removeLocked(c *Conn, roomID int64) {
	set := r.byRoom[roomID]
	delete(set, c)
	if len(set) == 0 {
		delete(r.byRoom, roomID)
	}
}

// Members returns a snapshot of connections subscribed to roomID.
func (r *Rooms) Members(roomID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byRoom[roomID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Emit sends ev to every member of roomID except skip (may be nil).
func (r *Rooms) Emit(roomID int64, ev Event, skip *Conn) int {
	n := 0
	for _, c := range r.Members(roomID) {
		if c == skip {
			continue
		}
		if c.Send(ev) {
			n++
		}
	}
	return n
}
