package chattest

import (
	"sync"

	"github.com/shopdesk/supportchat/internal/chat"
)

// Sink records every event it is given. Set Closed to simulate a dead socket.
type Sink struct {
	mu     sync.Mutex
	events []chat.Event
	Closed bool
}

func (s *Sink) Send(ev chat.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *Sink) Events() []chat.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Event(nil), s.events...)
}

// OfType returns the recorded events of one type in arrival order.
func (s *Sink) OfType(typ string) []chat.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Event
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Sink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *Sink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}
