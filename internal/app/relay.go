package app

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/core"
	"github.com/dkeye/Nexus/internal/domain"
	"github.com/dkeye/Nexus/internal/protocol"
)

// ErrTargetUnavailable means the routing target is absent or not
// currently registered. The message is dropped, never queued: stale
// signaling has no retry value.
var ErrTargetUnavailable = errors.New("target unavailable")

// SenderInfo is the router-known identity of the sending connection.
// Whatever sender attribution the client put in the frame is replaced
// with these values, so origin cannot be spoofed.
type SenderInfo struct {
	ID       domain.EndpointID
	RoomID   domain.RoomID
	RoomName string
}

// Relay forwards peer-to-peer messages through the registry. It keeps
// no state of its own and never inspects negotiation payloads.
type Relay struct {
	Registry *Registry
}

// Route delivers one routed frame to its target. Fields the router does
// not own are forwarded as the client sent them.
func (rl *Relay) Route(sender SenderInfo, env *protocol.Envelope, raw core.Frame) error {
	target, ok := rl.resolveTarget(sender, env)
	if !ok {
		return ErrTargetUnavailable
	}
	conn, ok := rl.Registry.Lookup(target)
	if !ok {
		log.Warn().Str("module", "app.relay").
			Str("from", string(sender.ID)).Str("target", string(target)).
			Msg("target not registered, dropping")
		return ErrTargetUnavailable
	}

	out, err := injectSender(raw, sender)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("rewrite frame")
		return err
	}

	if err := conn.TrySend(out); err != nil {
		// Slow or dying target: drop the frame, never block the
		// router. The target's own teardown handles the rest.
		log.Warn().Err(err).Str("module", "app.relay").
			Str("target", string(target)).Msg("send failed, frame dropped")
	}
	log.Debug().Str("module", "app.relay").
		Str("from", string(sender.ID)).Str("target", string(target)).
		Str("type", string(env.Type)).Msg("forwarded")
	return nil
}

// resolveTarget picks the routing field: household members address by
// room within their own household, flat peers by full identifier.
func (rl *Relay) resolveTarget(sender SenderInfo, env *protocol.Envelope) (domain.EndpointID, bool) {
	if env.TargetRoomID != "" {
		hh, _, ok := domain.SplitEndpointID(sender.ID)
		if !ok {
			return "", false
		}
		return domain.MemberEndpointID(hh, domain.RoomID(env.TargetRoomID)), true
	}
	if env.TargetID != "" {
		return domain.EndpointID(env.TargetID), true
	}
	return "", false
}

// injectSender stamps the sender attribution fields onto the frame,
// overwriting any client-supplied values. Decoding into a generic map
// keeps every field the router does not own intact.
func injectSender(raw core.Frame, sender SenderInfo) (core.Frame, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, protocol.FieldSenderRoomID)
	delete(fields, protocol.FieldSenderRoomName)
	fields[protocol.FieldSenderID] = string(sender.ID)
	if sender.RoomID != "" {
		fields[protocol.FieldSenderRoomID] = string(sender.RoomID)
		fields[protocol.FieldSenderRoomName] = sender.RoomName
	}
	return json.Marshal(fields)
}
