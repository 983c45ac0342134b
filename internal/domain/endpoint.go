package domain

import "strings"

// EndpointID identifies one registered connection. Flat peers use an
// opaque server-assigned string; household members use the composite
// "householdId:roomId" form. Uniqueness is scoped to "currently
// registered" — the ID is free for reuse the moment its holder
// disconnects.
type EndpointID string

// MemberEndpointID builds the composite identifier for a household room.
func MemberEndpointID(hh HouseholdID, room RoomID) EndpointID {
	return EndpointID(string(hh) + ":" + string(room))
}

// SplitEndpointID returns the household/room parts of a composite ID,
// or ok=false for a flat peer ID.
func SplitEndpointID(id EndpointID) (HouseholdID, RoomID, bool) {
	hh, room, ok := strings.Cut(string(id), ":")
	if !ok || hh == "" || room == "" {
		return "", "", false
	}
	return HouseholdID(hh), RoomID(room), true
}
