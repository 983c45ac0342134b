package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/directory"
	"github.com/dkeye/Nexus/internal/domain"
	"github.com/dkeye/Nexus/internal/protocol"
)

// Presence pushes room online/offline status to household members. On
// every registry change touching a household it recomputes the full
// list and sends it to everyone registered there — a full recompute,
// not a diff, which is fine at household sizes.
type Presence struct {
	Directory *directory.Directory
	Registry  *Registry
}

// HouseholdChanged recomputes and broadcasts the status list of hh.
func (p *Presence) HouseholdChanged(hh domain.HouseholdID) {
	household, ok := p.Directory.Household(hh)
	if !ok {
		return
	}

	msg := protocol.RoomStatusMessage{
		Type:  protocol.TypeRoomStatus,
		Rooms: make([]protocol.RoomStatus, 0, len(household.Rooms)),
	}
	for _, room := range household.Rooms {
		msg.Rooms = append(msg.Rooms, protocol.RoomStatus{
			RoomID:    room.ID,
			Name:      room.Name,
			Extension: room.Extension,
			Online:    p.Registry.Online(hh, room.ID),
		})
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("marshal room status")
		return
	}

	members := p.Registry.MemberConns(hh)
	for _, m := range members {
		if err := m.Conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.presence").
				Str("id", string(m.ID)).Msg("presence push dropped")
		}
	}
	log.Debug().Str("module", "app.presence").
		Str("household", string(hh)).Int("members", len(members)).
		Msg("room status broadcast")
}
