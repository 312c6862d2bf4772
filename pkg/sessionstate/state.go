package sessionstate

import (
	"sync"

	"github.com/google/uuid"
)

// Mode is the operating mode the client resumes into.
type Mode string

const (
	ModeUnresolved    Mode = "unresolved"
	ModeGuest         Mode = "guest"
	ModeAuthenticated Mode = "authenticated"
	ModeLoggedOut     Mode = "logged_out"
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}

const (
	// GuestLabel is the identity shown for guest sessions.
	GuestLabel = "Guest User"
	// PlaceholderLabel is shown for authenticated sessions with no known email.
	PlaceholderLabel = "Apple ID User"
)

// Snapshot is a point-in-time copy of the session fields.
type Snapshot struct {
	Mode            Mode       `json:"mode"`
	IdentityLabel   string     `json:"identity_label"`
	GuestID         *uuid.UUID `json:"guest_id,omitempty"`
	LoggedIn        bool       `json:"logged_in"`
	Guest           bool       `json:"guest"`
	UseLocalStorage bool       `json:"use_local_storage"`
	Generation      uint64     `json:"generation"`
}

// State owns the in-memory session fields. Every mutation goes through its
// mutex, and subscribers receive a snapshot after each change.
type State struct {
	mu      sync.RWMutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

// NewState returns an unresolved session.
func NewState() *State {
	return &State{
		snap: Snapshot{Mode: ModeUnresolved},
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot returns a copy of the current session fields.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySnapshot(s.snap)
}

// Subscribe registers for change notifications. Only the latest snapshot is
// kept for a slow reader. The returned func unsubscribes and closes the channel.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Reset returns the session to logged out without touching persisted values.
func (s *State) Reset() {
	s.apply(Resolution{Mode: ModeLoggedOut})
}

// apply installs a resolution and returns the new generation.
func (s *State) apply(res Resolution) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Snapshot{
		Mode:          res.Mode,
		IdentityLabel: res.IdentityLabel,
		Generation:    s.snap.Generation + 1,
	}
	switch res.Mode {
	case ModeGuest:
		id := res.GuestID
		next.GuestID = &id
		next.LoggedIn = true
		next.Guest = true
		next.UseLocalStorage = true
	case ModeAuthenticated:
		next.LoggedIn = true
	}
	s.snap = next
	s.notifyLocked()
	return next.Generation
}

// refineLabel replaces the identity label of an authenticated session that is
// still at generation gen. It reports whether the label changed.
func (s *State) refineLabel(gen uint64, label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Generation != gen || s.snap.Mode != ModeAuthenticated {
		return false
	}
	if s.snap.IdentityLabel == label {
		return false
	}
	s.snap.IdentityLabel = label
	s.notifyLocked()
	return true
}

func (s *State) notifyLocked() {
	snap := copySnapshot(s.snap)
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func copySnapshot(in Snapshot) Snapshot {
	out := in
	if in.GuestID != nil {
		id := *in.GuestID
		out.GuestID = &id
	}
	return out
}
