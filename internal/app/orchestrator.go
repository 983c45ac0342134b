package app

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/core"
	"github.com/dkeye/Nexus/internal/directory"
	"github.com/dkeye/Nexus/internal/domain"
)

// Orchestrator wires registry, directory, relay and presence and owns
// the connect/register/disconnect lifecycle of one endpoint.
type Orchestrator struct {
	Registry  *Registry
	Directory *directory.Directory
	Presence  *Presence
	Relay     *Relay
}

func NewOrchestrator(dir *directory.Directory) *Orchestrator {
	reg := NewRegistry(dir)
	return &Orchestrator{
		Registry:  reg,
		Directory: dir,
		Presence:  &Presence{Directory: dir, Registry: reg},
		Relay:     &Relay{Registry: reg},
	}
}

// Connect registers a fresh connection under a short ad hoc peer ID and
// returns the ID. The client may later trade it for a household/room
// identity via register.
func (o *Orchestrator) Connect(conn core.SignalConnection) domain.EndpointID {
	id := domain.EndpointID(uuid.NewString()[:8])
	o.Registry.Register(id, conn)
	return id
}

// RegisterMember moves a connection from its current identifier to the
// composite household/room one. The previous identifier is released
// only after the new registration succeeds, so a failed registration
// leaves the connection reachable as before.
func (o *Orchestrator) RegisterMember(
	prev domain.EndpointID,
	hh domain.HouseholdID,
	room domain.RoomID,
	conn core.SignalConnection,
) (domain.EndpointID, *domain.Room, error) {
	id, rec, err := o.Registry.RegisterMember(hh, room, conn)
	if err != nil {
		return "", nil, err
	}
	if prev != "" && prev != id {
		o.Registry.UnregisterConn(prev, conn)
		if prevHH, _, ok := domain.SplitEndpointID(prev); ok && prevHH != hh {
			o.Presence.HouseholdChanged(prevHH)
		}
	}
	o.Presence.HouseholdChanged(hh)
	log.Info().Str("module", "app.orchestrator").
		Str("id", string(id)).Str("prev", string(prev)).Msg("member online")
	return id, rec, nil
}

// Disconnect runs transport-close cleanup: unregister (guarded by the
// connection handle, see Registry.UnregisterConn) and a presence update
// when the endpoint had household context.
func (o *Orchestrator) Disconnect(id domain.EndpointID, conn core.SignalConnection) {
	if !o.Registry.UnregisterConn(id, conn) {
		return
	}
	if hh, _, ok := domain.SplitEndpointID(id); ok {
		o.Presence.HouseholdChanged(hh)
	}
}
