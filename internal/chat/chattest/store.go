// Package chattest provides in-memory fakes for chat tests.
package chattest

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopdesk/supportchat/internal/model"
	"github.com/shopdesk/supportchat/internal/repository"
)

// Store is an in-memory chat.Store with the same uniqueness and conditional
// update rules as the SQL schema.
type Store struct {
	mu        sync.Mutex
	rooms     map[int64]*model.ChatRoom
	messages  []model.ChatMessage
	customers map[int64]model.Principal
	staff     map[int64]model.Principal
	nextRoom  int64
	nextMsg   int64
	now       func() time.Time

	// Fail, when set, is returned by every call whose name is a key.
	Fail map[string]error
}

func NewStore() *Store {
	return &Store{
		rooms:     make(map[int64]*model.ChatRoom),
		customers: make(map[int64]model.Principal),
		staff:     make(map[int64]model.Principal),
		now:       time.Now,
		Fail:      make(map[string]error),
	}
}

// AddCustomer and AddStaff seed the directory.
func (s *Store) AddCustomer(p model.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Kind = model.KindCustomer
	s.customers[p.ID] = p
}

func (s *Store) AddStaff(p model.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Kind = model.KindStaff
	s.staff[p.ID] = p
}

func (s *Store) SetFail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.Fail, op)
		return
	}
	s.Fail[op] = err
}

func (s *Store) fail(op string) error { return s.Fail[op] }

// Messages returns a copy of all stored messages of a room in id order.
func (s *Store) Messages(roomID int64) []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// Room returns a copy of a room or nil.
func (s *Store) Room(id int64) *model.ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func copyRoom(r *model.ChatRoom) *model.ChatRoom {
	cp := *r
	if r.StaffID != nil {
		id := *r.StaffID
		cp.StaffID = &id
	}
	return &cp
}

func (s *Store) activeFor(customerID int64) *model.ChatRoom {
	var best *model.ChatRoom
	for _, r := range s.rooms {
		if r.CustomerID == customerID && r.Status == model.RoomStatusActive {
			if best == nil || r.ID > best.ID {
				best = r
			}
		}
	}
	return best
}

func (s *Store) FindActiveRoomForCustomer(_ context.Context, customerID int64) (*model.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("FindActiveRoomForCustomer"); err != nil {
		return nil, err
	}
	r := s.activeFor(customerID)
	if r == nil {
		return nil, repository.ErrNotFound
	}
	return copyRoom(r), nil
}

func (s *Store) CreateRoom(_ context.Context, customerID int64) (*model.ChatRoom, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRoom"); err != nil {
		return nil, false, err
	}
	if r := s.activeFor(customerID); r != nil {
		return copyRoom(r), false, nil
	}
	s.nextRoom++
	now := s.now()
	r := &model.ChatRoom{ID: s.nextRoom, CustomerID: customerID, Status: model.RoomStatusActive, CreatedAt: now, UpdatedAt: now}
	s.rooms[r.ID] = r
	return copyRoom(r), true, nil
}

func (s *Store) GetRoom(_ context.Context, roomID int64) (*model.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRoom"); err != nil {
		return nil, err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRoom(r), nil
}

func (s *Store) GetRoomDetails(_ context.Context, roomID int64) (*model.RoomDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetRoomDetails"); err != nil {
		return nil, err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.detailsLocked(r), nil
}

func (s *Store) detailsLocked(r *model.ChatRoom) *model.RoomDetails {
	d := &model.RoomDetails{ChatRoom: *copyRoom(r)}
	c := s.customers[r.CustomerID]
	d.CustomerName, d.CustomerEmail = c.Name, c.Email
	if r.StaffID != nil {
		st := s.staff[*r.StaffID]
		d.StaffName, d.StaffEmail = st.Name, st.Email
	}
	return d
}

func (s *Store) AssignStaffIfUnset(_ context.Context, roomID, staffID int64) (*model.ChatRoom, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AssignStaffIfUnset"); err != nil {
		return nil, false, err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if r.Status == model.RoomStatusClosed {
		return nil, false, repository.ErrAlreadyClosed
	}
	if r.StaffID != nil {
		return copyRoom(r), false, nil
	}
	id := staffID
	r.StaffID = &id
	r.UpdatedAt = s.now()
	return copyRoom(r), true, nil
}

func (s *Store) CloseRoom(_ context.Context, roomID int64) (*model.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CloseRoom"); err != nil {
		return nil, err
	}
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.Status == model.RoomStatusClosed {
		return nil, repository.ErrAlreadyClosed
	}
	r.Status = model.RoomStatusClosed
	r.UpdatedAt = s.now()
	return copyRoom(r), nil
}

func (s *Store) TouchRoomUpdatedAt(_ context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("TouchRoomUpdatedAt"); err != nil {
		return err
	}
	if r, ok := s.rooms[roomID]; ok {
		r.UpdatedAt = s.now()
	}
	return nil
}

func (s *Store) ListActiveRooms(_ context.Context) ([]model.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListActiveRooms"); err != nil {
		return nil, err
	}
	out := make([]model.RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.Status != model.RoomStatusActive {
			continue
		}
		sum := model.RoomSummary{RoomDetails: *s.detailsLocked(r)}
		for i := range s.messages {
			m := s.messages[i]
			if m.RoomID != r.ID {
				continue
			}
			if m.SenderKind == model.KindCustomer && !m.IsRead {
				sum.UnreadCount++
			}
			body, at, kind := m.Body, m.CreatedAt, m.SenderKind
			sum.LastMessage, sum.LastMessageTime, sum.LastSenderKind = &body, &at, &kind
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) Stats(_ context.Context) (*model.ChatStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Stats"); err != nil {
		return nil, err
	}
	st := &model.ChatStats{TotalRooms: len(s.rooms), TotalMessages: len(s.messages), RecentActivity: []model.RecentActivity{}}
	for _, r := range s.rooms {
		if r.Status == model.RoomStatusActive {
			st.ActiveRooms++
		}
	}
	unreadRooms := make(map[int64]struct{})
	for _, m := range s.messages {
		if m.SenderKind == model.KindCustomer && !m.IsRead {
			st.UnreadMessages++
			unreadRooms[m.RoomID] = struct{}{}
		}
	}
	st.RoomsWithUnread = len(unreadRooms)
	for i := len(s.messages) - 1; i >= 0 && len(st.RecentActivity) < 10; i-- {
		m := s.messages[i]
		r := s.rooms[m.RoomID]
		if r == nil || r.Status != model.RoomStatusActive {
			continue
		}
		c := s.customers[r.CustomerID]
		st.RecentActivity = append(st.RecentActivity, model.RecentActivity{
			RoomID: r.ID, CustomerName: c.Name, CustomerEmail: c.Email,
			Body: m.Body, SenderKind: m.SenderKind, CreatedAt: m.CreatedAt,
		})
	}
	return st, nil
}

func (s *Store) InsertMessage(_ context.Context, m *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertMessage"); err != nil {
		return err
	}
	if _, ok := s.rooms[m.RoomID]; !ok {
		return errors.New("chattest: foreign key violation on room_id")
	}
	if m.Kind == "" {
		m.Kind = model.MessageKindText
	}
	s.nextMsg++
	m.ID = s.nextMsg
	m.IsRead = false
	m.CreatedAt = s.now()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *Store) ListMessages(_ context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListMessages"); err != nil {
		return nil, err
	}
	all := s.roomMessagesLocked(roomID)
	return window(all, limit, offset), nil
}

func (s *Store) ListRecentMessages(_ context.Context, roomID int64, limit, offset int) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListRecentMessages"); err != nil {
		return nil, err
	}
	all := s.roomMessagesLocked(roomID)
	slices.Reverse(all)
	out := window(all, limit, offset)
	slices.Reverse(out)
	return out, nil
}

func (s *Store) roomMessagesLocked(roomID int64) []model.ChatMessage {
	out := make([]model.ChatMessage, 0)
	for _, m := range s.messages {
		if m.RoomID == roomID {
			m.SenderName = s.nameLocked(m.SenderID, m.SenderKind)
			out = append(out, m)
		}
	}
	return out
}

func window(all []model.ChatMessage, limit, offset int) []model.ChatMessage {
	if offset >= len(all) {
		return []model.ChatMessage{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Clone(all[offset:end])
}

func (s *Store) MarkRead(_ context.Context, roomID int64, senderKind model.PrincipalKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkRead"); err != nil {
		return 0, err
	}
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.RoomID == roomID && m.SenderKind == senderKind && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CountMessages(_ context.Context, roomID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CountMessages"); err != nil {
		return 0, err
	}
	return len(s.roomMessagesLocked(roomID)), nil
}

func (s *Store) DisplayName(_ context.Context, id int64, kind model.PrincipalKind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.nameLocked(id, kind)
	if name == "" {
		return "", repository.ErrNotFound
	}
	return name, nil
}

func (s *Store) nameLocked(id int64, kind model.PrincipalKind) string {
	if kind == model.KindStaff {
		return s.staff[id].Name
	}
	return s.customers[id].Name
}
