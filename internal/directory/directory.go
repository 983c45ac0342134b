// Package directory holds the static household/room lookup table. It is
// loaded once at process start and never mutated afterwards, so reads
// need no synchronization.
package directory

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/Nexus/internal/domain"
)

type Directory struct {
	households map[domain.HouseholdID]*domain.Household
	rooms      map[domain.EndpointID]*domain.Room
	ordered    []domain.Household
}

// New builds the lookup maps from already-decoded records. Used by
// Load and directly by tests.
func New(households []domain.Household) *Directory {
	d := &Directory{
		households: make(map[domain.HouseholdID]*domain.Household, len(households)),
		rooms:      make(map[domain.EndpointID]*domain.Room, len(households)),
		ordered:    households,
	}
	for i := range d.ordered {
		hh := &d.ordered[i]
		d.households[hh.ID] = hh
		for j := range hh.Rooms {
			d.rooms[domain.MemberEndpointID(hh.ID, hh.Rooms[j].ID)] = &hh.Rooms[j]
		}
	}
	return d
}

// Load reads the household records from a YAML file.
func Load(path string) (*Directory, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read directory file %s: %w", path, err)
	}

	var raw struct {
		Households []domain.Household `mapstructure:"households"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", path, err)
	}

	d := New(raw.Households)
	log.Info().Str("module", "directory").Str("path", path).
		Int("households", len(d.ordered)).Msg("directory loaded")
	return d, nil
}

func (d *Directory) Household(id domain.HouseholdID) (*domain.Household, bool) {
	hh, ok := d.households[id]
	return hh, ok
}

// Room resolves a household/room pair. ok=false means the pair names
// nothing in the directory and a registration using it must be refused.
func (d *Directory) Room(hh domain.HouseholdID, room domain.RoomID) (*domain.Room, bool) {
	r, ok := d.rooms[domain.MemberEndpointID(hh, room)]
	return r, ok
}

// Snapshot returns the full directory in load order, for the HTTP
// listing endpoint. The slice is a copy; the records are shared and
// must be treated as read-only.
func (d *Directory) Snapshot() []domain.Household {
	out := make([]domain.Household, len(d.ordered))
	copy(out, d.ordered)
	return out
}
