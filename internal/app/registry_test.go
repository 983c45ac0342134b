package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Nexus/internal/core"
	"github.com/dkeye/Nexus/internal/directory"
	"github.com/dkeye/Nexus/internal/domain"
)

// fakeConn records every frame pushed to it.
type fakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	failSend bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("send failed")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// decoded returns frame i as a generic map.
func (f *fakeConn) decoded(t *testing.T, i int) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.frames) {
		t.Fatalf("want frame %d, have %d", i, len(f.frames))
	}
	var m map[string]any
	if err := json.Unmarshal(f.frames[i], &m); err != nil {
		t.Fatalf("decode frame %d: %v", i, err)
	}
	return m
}

func testDirectory() *directory.Directory {
	return directory.New([]domain.Household{
		{
			ID:   "home",
			Name: "Home",
			Rooms: []domain.Room{
				{ID: "kitchen", Name: "Kitchen", Extension: 101},
				{ID: "office", Name: "Office", Extension: 102},
				{ID: "garage", Name: "Garage", Extension: 103},
			},
		},
	})
}

func TestRegisterLookup(t *testing.T) {
	reg := NewRegistry(testDirectory())
	conn := &fakeConn{}

	reg.Register("abcd", conn)
	got, ok := reg.Lookup("abcd")
	if !ok || got != conn {
		t.Fatalf("lookup after register: got %v ok=%v", got, ok)
	}
}

func TestRegisterOverwrites(t *testing.T) {
	reg := NewRegistry(testDirectory())
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Register("abcd", first)
	reg.Register("abcd", second)

	got, ok := reg.Lookup("abcd")
	if !ok || got != second {
		t.Fatalf("lookup should return the later connection, got %v", got)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	reg := NewRegistry(testDirectory())
	reg.Register("abcd", &fakeConn{})

	reg.Unregister("abcd")
	if _, ok := reg.Lookup("abcd"); ok {
		t.Fatal("lookup after unregister should miss")
	}
	// Second call is a no-op, not a panic or error.
	reg.Unregister("abcd")
	reg.Unregister("never-registered")
}

func TestUnregisterConnSkipsReplacement(t *testing.T) {
	reg := NewRegistry(testDirectory())
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Register("abcd", first)
	reg.Register("abcd", second)

	// The replaced connection's teardown must not evict the new one.
	if reg.UnregisterConn("abcd", first) {
		t.Fatal("stale connection should not remove the entry")
	}
	if got, ok := reg.Lookup("abcd"); !ok || got != second {
		t.Fatal("replacement should still be registered")
	}

	if !reg.UnregisterConn("abcd", second) {
		t.Fatal("owner connection should remove the entry")
	}
	if _, ok := reg.Lookup("abcd"); ok {
		t.Fatal("entry should be gone")
	}
}

func TestRegisterMemberValidatesDirectory(t *testing.T) {
	reg := NewRegistry(testDirectory())
	conn := &fakeConn{}

	id, rec, err := reg.RegisterMember("home", "kitchen", conn)
	if err != nil {
		t.Fatalf("valid registration: %v", err)
	}
	if id != "home:kitchen" {
		t.Fatalf("composite id = %q", id)
	}
	if rec.Name != "Kitchen" || rec.Extension != 101 {
		t.Fatalf("room record = %+v", rec)
	}
	if !reg.Online("home", "kitchen") {
		t.Fatal("kitchen should be online")
	}
}

func TestRegisterMemberUnknownRoom(t *testing.T) {
	reg := NewRegistry(testDirectory())

	cases := []struct {
		hh   domain.HouseholdID
		room domain.RoomID
	}{
		{"home", "attic"},
		{"mansion", "kitchen"},
	}
	for _, tc := range cases {
		_, _, err := reg.RegisterMember(tc.hh, tc.room, &fakeConn{})
		if !errors.Is(err, ErrInvalidRegistration) {
			t.Fatalf("%s/%s: want ErrInvalidRegistration, got %v", tc.hh, tc.room, err)
		}
		if _, ok := reg.Lookup(domain.MemberEndpointID(tc.hh, tc.room)); ok {
			t.Fatalf("%s/%s: failed registration must not mutate the registry", tc.hh, tc.room)
		}
	}
}

func TestMemberConns(t *testing.T) {
	reg := NewRegistry(testDirectory())
	kitchen := &fakeConn{}
	office := &fakeConn{}

	if _, _, err := reg.RegisterMember("home", "kitchen", kitchen); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.RegisterMember("home", "office", office); err != nil {
		t.Fatal(err)
	}
	reg.Register("flat-peer", &fakeConn{})

	members := reg.MemberConns("home")
	if len(members) != 2 {
		t.Fatalf("want 2 household members, got %d", len(members))
	}
	rooms := map[domain.RoomID]bool{}
	for _, m := range members {
		rooms[m.Room] = true
	}
	if !rooms["kitchen"] || !rooms["office"] {
		t.Fatalf("member rooms = %v", rooms)
	}
}
