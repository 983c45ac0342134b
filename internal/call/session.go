// Package call implements the per-endpoint call lifecycle. The server
// forwards signaling unconditionally; legality of each message is
// enforced here, identically on both sides of a call. Divergence
// between the two views (one side active while the other already hung
// up) is a normal transient, resolved by call:end or transport close.
package call

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Nexus/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateActive:
		return "active"
	}
	return "unknown"
}

var (
	// ErrBusy rejects a call attempt while a session is already in
	// progress (glare). The existing session is not disturbed.
	ErrBusy = errors.New("call already in progress")
	// ErrNoCall rejects an operation that needs a session when none
	// exists.
	ErrNoCall = errors.New("no call in progress")
	// ErrUnexpectedOffer means an offer arrived while a local offer
	// was outstanding, or at the side designated to produce the
	// offer. The session aborts to idle; the caller should notify
	// the peer with call:end.
	ErrUnexpectedOffer = errors.New("unexpected offer")
)

// Session is one endpoint's local view of a two-party call. There is no
// shared session object anywhere: each side advances its own copy from
// the messages it sends and receives.
type Session struct {
	mu sync.Mutex

	state    State
	remote   domain.EndpointID
	mode     domain.CallMode
	answerer bool

	offerPending      bool
	remoteDescription *webrtc.SessionDescription
	candidates        []webrtc.ICECandidateInit
}

func New() *Session { return &Session{} }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Remote() domain.EndpointID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *Session) Mode() domain.CallMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// StartCall records an outgoing call request: idle -> calling.
func (s *Session) StartCall(target domain.EndpointID, mode domain.CallMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrBusy
	}
	s.state = StateCalling
	s.remote = target
	s.mode = mode
	return nil
}

// HandleRequest records an incoming call request: idle -> ringing. Any
// other state is glare; the caller should answer with a decline and
// leave the current session alone.
func (s *Session) HandleRequest(from domain.EndpointID, mode domain.CallMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrBusy
	}
	s.state = StateRinging
	s.remote = from
	s.mode = mode
	return nil
}

// Accept answers the ringing call: ringing -> active. This side becomes
// the answerer — it waits for the peer's offer and must not produce one
// of its own.
func (s *Session) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRinging {
		return ErrNoCall
	}
	s.state = StateActive
	s.answerer = true
	return nil
}

// Decline refuses the ringing call: ringing -> idle.
func (s *Session) Decline() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRinging {
		return ErrNoCall
	}
	s.reset()
	return nil
}

// HandleResponse consumes the peer's answer to our request. On accept
// the session goes active and this side, as initiator, must produce the
// offer (makeOffer=true). On decline the session returns to idle.
func (s *Session) HandleResponse(accepted bool) (makeOffer bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCalling {
		return false, ErrNoCall
	}
	if !accepted {
		s.reset()
		return false, nil
	}
	s.state = StateActive
	return true, nil
}

// OfferSent marks the local offer as outstanding. Only the initiator
// side of an active session may send one.
func (s *Session) OfferSent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.answerer {
		return ErrUnexpectedOffer
	}
	s.offerPending = true
	return nil
}

// HandleOffer consumes the peer's offer. Legal only at the answerer
// side of an active session with no local offer outstanding; any other
// arrival aborts the session to idle with ErrUnexpectedOffer, and the
// caller should send call:end. A nil error means "produce the answer".
func (s *Session) HandleOffer(sd webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNoCall
	}
	if s.offerPending || !s.answerer {
		s.reset()
		return ErrUnexpectedOffer
	}
	s.remoteDescription = &sd
	return nil
}

// HandleAnswer consumes the peer's answer to our outstanding offer.
func (s *Session) HandleAnswer(sd webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || !s.offerPending {
		return ErrNoCall
	}
	s.offerPending = false
	s.remoteDescription = &sd
	return nil
}

// HandleCandidate buffers a trickled candidate. Candidates may race
// session setup and teardown under normal operation, so one arriving
// outside an active session is dropped without error; the return value
// reports whether it was kept.
func (s *Session) HandleCandidate(c webrtc.ICECandidateInit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.candidates = append(s.candidates, c)
	return true
}

// RemoteDescription returns the last description received from the
// peer, for handing to the local peer connection.
func (s *Session) RemoteDescription() *webrtc.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDescription
}

// Candidates drains the buffered remote candidates.
func (s *Session) Candidates() []webrtc.ICECandidateInit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.candidates
	s.candidates = nil
	return out
}

// End tears the session down from any state: local hangup, a received
// call:end, or transport close of either side. Idempotent.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// RemoteOffline tears the session down if the named endpoint is the
// current remote party, as detected via a presence update or a send
// failure. Reports whether a session was torn down.
func (s *Session) RemoteOffline(id domain.EndpointID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || s.remote != id {
		return false
	}
	s.reset()
	return true
}

func (s *Session) reset() {
	s.state = StateIdle
	s.remote = ""
	s.mode = ""
	s.answerer = false
	s.offerPending = false
	s.remoteDescription = nil
	s.candidates = nil
}
