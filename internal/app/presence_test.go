package app

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Nexus/internal/domain"
	"github.com/dkeye/Nexus/internal/protocol"
)

func lastStatus(t *testing.T, c *fakeConn) protocol.RoomStatusMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		t.Fatal("no frames received")
	}
	var msg protocol.RoomStatusMessage
	if err := json.Unmarshal(c.frames[len(c.frames)-1], &msg); err != nil {
		t.Fatalf("decode room status: %v", err)
	}
	if msg.Type != protocol.TypeRoomStatus {
		t.Fatalf("type = %q, want room:status", msg.Type)
	}
	return msg
}

func onlineSet(msg protocol.RoomStatusMessage) map[domain.RoomID]bool {
	out := map[domain.RoomID]bool{}
	for _, r := range msg.Rooms {
		out[r.RoomID] = r.Online
	}
	return out
}

func TestPresenceReachesAllMembers(t *testing.T) {
	dir := testDirectory()
	reg := NewRegistry(dir)
	p := &Presence{Directory: dir, Registry: reg}

	kitchen := &fakeConn{}
	office := &fakeConn{}
	if _, _, err := reg.RegisterMember("home", "kitchen", kitchen); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.RegisterMember("home", "office", office); err != nil {
		t.Fatal(err)
	}

	p.HouseholdChanged("home")

	for name, conn := range map[string]*fakeConn{"kitchen": kitchen, "office": office} {
		msg := lastStatus(t, conn)
		if len(msg.Rooms) != 3 {
			t.Fatalf("%s: want full room list (3), got %d", name, len(msg.Rooms))
		}
		online := onlineSet(msg)
		if !online["kitchen"] || !online["office"] || online["garage"] {
			t.Fatalf("%s: online flags wrong: %v", name, online)
		}
	}
}

func TestPresenceAfterUnregister(t *testing.T) {
	dir := testDirectory()
	reg := NewRegistry(dir)
	p := &Presence{Directory: dir, Registry: reg}

	kitchen := &fakeConn{}
	office := &fakeConn{}
	if _, _, err := reg.RegisterMember("home", "kitchen", kitchen); err != nil {
		t.Fatal(err)
	}
	if _, _, err := reg.RegisterMember("home", "office", office); err != nil {
		t.Fatal(err)
	}

	reg.Unregister(domain.MemberEndpointID("home", "office"))
	p.HouseholdChanged("home")

	msg := lastStatus(t, kitchen)
	online := onlineSet(msg)
	if online["office"] {
		t.Fatal("office should be offline after unregister")
	}
	if !online["kitchen"] {
		t.Fatal("kitchen should still be online")
	}
	// Display metadata comes from the directory, not the registry.
	for _, r := range msg.Rooms {
		if r.Name == "" || r.Extension == 0 {
			t.Fatalf("room %s missing directory metadata: %+v", r.RoomID, r)
		}
	}
}

func TestPresenceUnknownHouseholdIsNoop(t *testing.T) {
	dir := testDirectory()
	reg := NewRegistry(dir)
	p := &Presence{Directory: dir, Registry: reg}
	p.HouseholdChanged("nowhere")
}

func TestOrchestratorDisconnectTriggersPresence(t *testing.T) {
	o := NewOrchestrator(testDirectory())

	kitchen := &fakeConn{}
	office := &fakeConn{}
	kid, _, err := o.RegisterMember("", "home", "kitchen", kitchen)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := o.RegisterMember("", "home", "office", office); err != nil {
		t.Fatal(err)
	}

	before := office.count()
	o.Disconnect(kid, kitchen)

	if office.count() <= before {
		t.Fatal("remaining member should receive a presence update on disconnect")
	}
	msg := lastStatus(t, office)
	if onlineSet(msg)["kitchen"] {
		t.Fatal("kitchen should be offline after disconnect")
	}
}

func TestOrchestratorRegisterReleasesAdHocID(t *testing.T) {
	o := NewOrchestrator(testDirectory())

	conn := &fakeConn{}
	adhoc := o.Connect(conn)
	if _, ok := o.Registry.Lookup(adhoc); !ok {
		t.Fatal("ad hoc id should be registered on connect")
	}

	id, rec, err := o.RegisterMember(adhoc, "home", "kitchen", conn)
	if err != nil {
		t.Fatal(err)
	}
	if id != "home:kitchen" || rec.Name != "Kitchen" {
		t.Fatalf("registration result: %q %+v", id, rec)
	}
	if _, ok := o.Registry.Lookup(adhoc); ok {
		t.Fatal("ad hoc id should be released after member registration")
	}
	if _, ok := o.Registry.Lookup(id); !ok {
		t.Fatal("member id should be registered")
	}
}

func TestOrchestratorFailedRegisterKeepsOldIdentity(t *testing.T) {
	o := NewOrchestrator(testDirectory())

	conn := &fakeConn{}
	adhoc := o.Connect(conn)

	if _, _, err := o.RegisterMember(adhoc, "home", "attic", conn); err == nil {
		t.Fatal("want error for unknown room")
	}
	if _, ok := o.Registry.Lookup(adhoc); !ok {
		t.Fatal("failed registration must leave the previous identity intact")
	}
}
