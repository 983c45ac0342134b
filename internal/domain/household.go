// Package domain contains entity without logic, just meta-data
package domain

type (
	HouseholdID string
	RoomID      string
)

// Room is a callable endpoint slot within a household: an intercom
// panel in the kitchen, office, etc. Extension is the short dial code
// shown next to the room name in clients.
type Room struct {
	ID        RoomID `json:"roomId" mapstructure:"id"`
	Name      string `json:"name" mapstructure:"name"`
	Extension int    `json:"extension" mapstructure:"extension"`
}

// Household groups the rooms that may call each other. Households are
// static configuration; they never change while the process runs.
type Household struct {
	ID    HouseholdID `json:"householdId" mapstructure:"id"`
	Name  string      `json:"name" mapstructure:"name"`
	Rooms []Room      `json:"rooms" mapstructure:"rooms"`
}
