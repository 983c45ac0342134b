package protocol

import (
	"testing"

	"github.com/dkeye/Nexus/internal/domain"
)

func TestDecode(t *testing.T) {
	raw := `{"type":"call:request","targetRoomId":"office","callMode":"video","hasVideo":true,"hasAudio":true}`
	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeCallRequest {
		t.Fatalf("type = %q", env.Type)
	}
	if env.TargetRoomID != "office" || env.CallMode != domain.CallModeVideo {
		t.Fatalf("env = %+v", env)
	}
	if !env.HasVideo || !env.HasAudio {
		t.Fatalf("media flags = %v/%v", env.HasVideo, env.HasAudio)
	}
}

func TestDecodeAcceptedTristate(t *testing.T) {
	env, err := Decode([]byte(`{"type":"call:response","targetId":"x","accepted":false}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Accepted == nil || *env.Accepted {
		t.Fatalf("accepted = %v, want explicit false", env.Accepted)
	}

	env, err = Decode([]byte(`{"type":"call:end","targetId":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.Accepted != nil {
		t.Fatal("absent accepted must stay nil")
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatal("want error for malformed frame")
	}
}

func TestRoutable(t *testing.T) {
	routed := []Type{
		TypeCallRequest, TypeCallResponse, TypeCallAccept, TypeCallDecline,
		TypeCallEnd, TypeOffer, TypeAnswer, TypeCandidate,
	}
	for _, tt := range routed {
		if !Routable(tt) {
			t.Fatalf("%s should be routable", tt)
		}
	}
	local := []Type{TypeRegister, TypePing, TypeMe, TypeRegistered, TypeRoomStatus, TypeError, Type("bogus")}
	for _, tt := range local {
		if Routable(tt) {
			t.Fatalf("%s should not be routable", tt)
		}
	}
}
