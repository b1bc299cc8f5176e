package application

import (
	"sort"
	"sync"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
)

// SessionStore holds at most one active session per room and the per-room
// rejection notice ledger. A single mutex guards both maps and every field
// of every session reachable from them.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]*domain.Session
	notices  map[domain.RoomID]map[domain.PlayerID]time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: map[domain.RoomID]*domain.Session{},
		notices:  map[domain.RoomID]map[domain.PlayerID]time.Time{},
	}
}

// install registers s as the room's live session and clears the room's
// notice ledger. Any session it displaces is marked inactive and returned.
func (st *SessionStore) install(s *domain.Session) *domain.Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	previous := st.sessions[s.RoomID]
	if previous != nil {
		previous.Active = false
	}
	s.Active = true
	st.sessions[s.RoomID] = s
	delete(st.notices, s.RoomID)

	return previous
}

// detach removes the room's session and marks it inactive. Only the first
// caller for a given session gets it back.
func (st *SessionStore) detach(room domain.RoomID) (*domain.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[room]
	if !ok {
		return nil, false
	}
	s.Active = false
	delete(st.sessions, room)
	delete(st.notices, room)

	return s, true
}

// purge drops whatever is left of s. A newer session in the same room is
// left alone.
func (st *SessionStore) purge(s *domain.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s.Active = false
	current, ok := st.sessions[s.RoomID]
	if ok && current != s {
		return
	}
	delete(st.sessions, s.RoomID)
	delete(st.notices, s.RoomID)
}

// view runs fn against the room's active session under the lock.
func (st *SessionStore) view(room domain.RoomID, fn func(*domain.Session)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[room]
	if !ok || !s.Active {
		return false
	}
	fn(s)

	return true
}

// mutate runs fn only if expected is still the room's active session.
func (st *SessionStore) mutate(room domain.RoomID, expected *domain.Session, fn func(*domain.Session) bool) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[room]
	if !ok || s != expected || !s.Active {
		return false
	}

	return fn(s)
}

// sweep visits every active session. Sessions for which visit returns true
// are detached and returned.
func (st *SessionStore) sweep(visit func(*domain.Session) bool) []*domain.Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	var expired []*domain.Session
	for _, room := range st.roomsLocked() {
		s := st.sessions[room]
		if !s.Active {
			continue
		}
		if visit(s) {
			s.Active = false
			delete(st.sessions, room)
			delete(st.notices, room)
			expired = append(expired, s)
		}
	}

	return expired
}

// reserveNotice reports whether a rejection notice may be shown to player
// and stamps the ledger when it may. Rooms without a live session never get
// a ledger entry.
func (st *SessionStore) reserveNotice(room domain.RoomID, player domain.PlayerID, now time.Time, cooldown time.Duration) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[room]; !ok || !s.Active {
		return false
	}

	ledger := st.notices[room]
	if ledger == nil {
		ledger = map[domain.PlayerID]time.Time{}
		st.notices[room] = ledger
	}
	if last, seen := ledger[player]; seen && now.Sub(last) <= cooldown {
		return false
	}
	ledger[player] = now

	return true
}

func (st *SessionStore) HasActive(room domain.RoomID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[room]

	return ok && s.Active
}

// Snapshot returns deep copies of every active session, ordered by room.
func (st *SessionStore) Snapshot() []*domain.Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*domain.Session, 0, len(st.sessions))
	for _, room := range st.roomsLocked() {
		if s := st.sessions[room]; s.Active {
			out = append(out, s.Clone())
		}
	}

	return out
}

func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.sessions)
}

func (st *SessionStore) noticeRooms() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.notices)
}

func (st *SessionStore) roomsLocked() []domain.RoomID {
	rooms := make([]domain.RoomID, 0, len(st.sessions))
	for room := range st.sessions {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })

	return rooms
}
