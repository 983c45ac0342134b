// Package protocol defines the JSON message envelope spoken over the
// signaling socket. The server reads only the fields it owns (type,
// routing, sender attribution); negotiation bodies pass through it
// untouched.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Nexus/internal/domain"
)

type Type string

const (
	// Server-originated.
	TypeMe         Type = "me"
	TypeRegistered Type = "registered"
	TypeRoomStatus Type = "room:status"
	TypeError      Type = "error"
	TypePong       Type = "pong"

	// Client control.
	TypeRegister Type = "register"
	TypePing     Type = "ping"

	// Routed peer-to-peer.
	TypeCallRequest  Type = "call:request"
	TypeCallResponse Type = "call:response"
	TypeCallAccept   Type = "call:accept"
	TypeCallDecline  Type = "call:decline"
	TypeCallEnd      Type = "call:end"
	TypeOffer        Type = "webrtc:offer"
	TypeAnswer       Type = "webrtc:answer"
	TypeCandidate    Type = "webrtc:candidate"
)

// Routable reports whether messages of this type are forwarded to a
// peer rather than handled by the server. The switch is exhaustive
// over the routed tags so a new tag cannot silently fall through.
func Routable(t Type) bool {
	switch t {
	case TypeCallRequest, TypeCallResponse, TypeCallAccept, TypeCallDecline,
		TypeCallEnd, TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// Envelope is the decoded view of an inbound message. Only the fields
// the server acts on are typed; everything else stays in the raw frame.
type Envelope struct {
	Type Type `json:"type"`

	// Routing: flat peers address by TargetID, household members by
	// TargetRoomID (resolved within the sender's own household).
	TargetID     string `json:"targetId,omitempty"`
	TargetRoomID string `json:"targetRoomId,omitempty"`

	// Registration.
	HouseholdID string `json:"householdId,omitempty"`
	RoomID      string `json:"roomId,omitempty"`

	// Sender attribution as seen by the receiving side. The router
	// overwrites these on forward; inbound values are ignored.
	SenderID       string `json:"senderId,omitempty"`
	SenderRoomID   string `json:"senderRoomId,omitempty"`
	SenderRoomName string `json:"senderRoomName,omitempty"`

	// Call metadata, present on call:request / call:response.
	CallMode domain.CallMode `json:"callMode,omitempty"`
	HasVideo bool            `json:"hasVideo,omitempty"`
	HasAudio bool            `json:"hasAudio,omitempty"`
	Accepted *bool           `json:"accepted,omitempty"`

	// Opaque negotiation body for webrtc:* types.
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Sender attribution fields. Injected by the router on every forwarded
// frame; client-supplied values are discarded.
const (
	FieldSenderID       = "senderId"
	FieldSenderRoomID   = "senderRoomId"
	FieldSenderRoomName = "senderRoomName"
)

// ErrorMessage is the shape of every error the server sends back on the
// offending connection.
type ErrorMessage struct {
	Type    Type   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

const (
	CodeInvalidRegistration = "invalid_registration"
	CodeTargetUnavailable   = "target_unavailable"
	CodeBadPayload          = "bad_payload"
)

// RoomStatus is one entry of a room:status presence push.
type RoomStatus struct {
	RoomID    domain.RoomID `json:"roomId"`
	Name      string        `json:"name"`
	Extension int           `json:"extension"`
	Online    bool          `json:"online"`
}

// RoomStatusMessage carries the full recomputed member list of one
// household. Consumers render the whole list, not a diff.
type RoomStatusMessage struct {
	Type  Type         `json:"type"`
	Rooms []RoomStatus `json:"rooms"`
}
