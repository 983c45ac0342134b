package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/domain"
	"github.com/dkeye/Nexus/internal/protocol"
)

// handleRegister trades the connection's ad hoc peer ID for a
// household/room identity. On failure the connection stays open and
// keeps its previous identifier.
func (ctl *SignalWSController) handleRegister(
	es *endpointSession,
	conn *WsSignalConn,
	env *protocol.Envelope,
) {
	hh := domain.HouseholdID(env.HouseholdID)
	room := domain.RoomID(env.RoomID)
	if hh == "" || room == "" {
		ctl.sendError(conn, protocol.CodeInvalidRegistration, "householdId and roomId required")
		return
	}

	id, rec, err := ctl.Orch.RegisterMember(es.current(), hh, room, conn)
	if err != nil {
		log.Warn().Str("module", "signal").
			Str("household", string(hh)).Str("room", string(room)).
			Msg("register refused")
		ctl.sendError(conn, protocol.CodeInvalidRegistration, "unknown household or room")
		return
	}
	es.setMember(id, rec)

	ctl.sendJSON(conn, struct {
		Type        protocol.Type      `json:"type"`
		HouseholdID domain.HouseholdID `json:"householdId"`
		RoomID      domain.RoomID      `json:"roomId"`
		RoomName    string             `json:"roomName"`
		Extension   int                `json:"extension"`
	}{protocol.TypeRegistered, hh, room, rec.Name, rec.Extension})
}
