package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/core"
	"github.com/dkeye/Nexus/internal/directory"
	"github.com/dkeye/Nexus/internal/domain"
)

// ErrInvalidRegistration means a registration named a household or room
// the directory does not know. The registry is left untouched.
var ErrInvalidRegistration = errors.New("invalid registration")

type connEntry struct {
	Conn      core.SignalConnection
	Household domain.HouseholdID
	Room      domain.RoomID
	JoinedAt  time.Time
}

// Registry maps each registered endpoint identifier to its one live
// connection. A second registration under the same identifier replaces
// the first; the replaced transport is not closed here — its own
// read-loop exit runs the disconnect path, which no longer matches the
// entry and so cannot evict the replacement.
type Registry struct {
	mu      sync.RWMutex
	dir     *directory.Directory
	entries map[domain.EndpointID]*connEntry
}

func NewRegistry(dir *directory.Directory) *Registry {
	return &Registry{
		dir:     dir,
		entries: make(map[domain.EndpointID]*connEntry),
	}
}

// Register binds a flat peer identifier to a connection. Last writer
// wins.
func (r *Registry) Register(id domain.EndpointID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &connEntry{Conn: conn, JoinedAt: time.Now()}
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("registered")
}

// RegisterMember binds a household room to a connection after checking
// the pair against the directory. Returns the composite identifier and
// the directory room record.
func (r *Registry) RegisterMember(
	hh domain.HouseholdID,
	room domain.RoomID,
	conn core.SignalConnection,
) (domain.EndpointID, *domain.Room, error) {
	rec, ok := r.dir.Room(hh, room)
	if !ok {
		log.Warn().Str("module", "app.registry").
			Str("household", string(hh)).Str("room", string(room)).
			Msg("registration for unknown household/room")
		return "", nil, ErrInvalidRegistration
	}

	id := domain.MemberEndpointID(hh, room)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &connEntry{
		Conn:      conn,
		Household: hh,
		Room:      room,
		JoinedAt:  time.Now(),
	}
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("member registered")
	return id, rec, nil
}

func (r *Registry) Lookup(id domain.EndpointID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

// Unregister removes the entry for id. Removing an absent identifier is
// a no-op.
func (r *Registry) Unregister(id domain.EndpointID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("unregistered")
}

// UnregisterConn removes the entry for id only if it still points at
// conn. A connection replaced by a later registration fails this check
// on its own teardown, keeping the replacement alive. Reports whether
// an entry was removed.
func (r *Registry) UnregisterConn(id domain.EndpointID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.entries, id)
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("unregistered")
	return true
}

// Online reports whether a household room currently has a live entry.
func (r *Registry) Online(hh domain.HouseholdID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[domain.MemberEndpointID(hh, room)]
	return ok
}

// MemberConn is a snapshot of one registered household member.
type MemberConn struct {
	ID   domain.EndpointID
	Room domain.RoomID
	Conn core.SignalConnection
}

// MemberConns returns the currently registered members of a household.
func (r *Registry) MemberConns(hh domain.HouseholdID) []MemberConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberConn, 0, len(r.entries))
	for id, e := range r.entries {
		if e.Household == hh {
			out = append(out, MemberConn{ID: id, Room: e.Room, Conn: e.Conn})
		}
	}
	return out
}
