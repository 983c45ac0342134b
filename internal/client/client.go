// Package client is the endpoint-side of the signaling protocol: it
// keeps one WebSocket to the server, runs the call.Session state
// machine over the messages it sends and receives, and hands media
// negotiation to an embedder-supplied Negotiator. UI and media capture
// live above this package; they call into it and react to its events.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/call"
	"github.com/dkeye/Nexus/internal/domain"
	"github.com/dkeye/Nexus/internal/protocol"
)

// Negotiator produces and consumes the opaque negotiation payloads.
// The real implementation wraps a webrtc.PeerConnection; tests use a
// stub. The answerer side only ever sees CreateAnswer.
type Negotiator interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer(remote webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AcceptAnswer(remote webrtc.SessionDescription) error
	AddCandidate(c webrtc.ICECandidateInit) error
}

// Handlers are the event callbacks the embedder reacts to. All of them
// are optional and are invoked from the read loop goroutine.
type Handlers struct {
	OnRegistered   func(hh domain.HouseholdID, room domain.RoomID, name string)
	OnIncomingCall func(from domain.RoomID, mode domain.CallMode)
	OnCallAccepted func()
	OnCallDeclined func()
	OnCallEnded    func()
	OnRoomStatus   func(rooms []protocol.RoomStatus)
	OnError        func(code, message string)
}

type Client struct {
	ws       *websocket.Conn
	neg      Negotiator
	handlers Handlers

	writeMu sync.Mutex

	mu        sync.Mutex
	peerID    domain.EndpointID
	household domain.HouseholdID
	room      domain.RoomID

	Session *call.Session
}

// Dial connects to the signaling server and starts the read loop. The
// connection is torn down when ctx is canceled or Close is called.
func Dial(ctx context.Context, url string, neg Negotiator, h Handlers) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ws:       ws,
		neg:      neg,
		handlers: h,
		Session:  call.New(),
	}
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()
	go c.readLoop()
	return c, nil
}

func (c *Client) Close() error {
	return c.ws.Close()
}

// PeerID returns the server-assigned ad hoc identifier, once received.
func (c *Client) PeerID() domain.EndpointID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// Register asks the server to bind this connection to a household room.
// The result arrives as OnRegistered or OnError.
func (c *Client) Register(hh domain.HouseholdID, room domain.RoomID) error {
	return c.send(map[string]any{
		"type":        protocol.TypeRegister,
		"householdId": string(hh),
		"roomId":      string(room),
	})
}

// StartCall rings another room in our household.
func (c *Client) StartCall(target domain.RoomID, mode domain.CallMode) error {
	c.mu.Lock()
	hh := c.household
	c.mu.Unlock()
	if hh == "" {
		return errors.New("not registered to a household")
	}
	if err := c.Session.StartCall(domain.MemberEndpointID(hh, target), mode); err != nil {
		return err
	}
	return c.send(map[string]any{
		"type":         protocol.TypeCallRequest,
		"targetRoomId": string(target),
		"callMode":     string(mode),
	})
}

// Accept answers the ringing call. This side becomes the answerer and
// waits for the peer's offer.
func (c *Client) Accept() error {
	remote := c.remoteRoom()
	if err := c.Session.Accept(); err != nil {
		return err
	}
	return c.send(map[string]any{
		"type":         protocol.TypeCallAccept,
		"targetRoomId": string(remote),
	})
}

// Decline refuses the ringing call.
func (c *Client) Decline() error {
	remote := c.remoteRoom()
	if err := c.Session.Decline(); err != nil {
		return err
	}
	return c.send(map[string]any{
		"type":         protocol.TypeCallDecline,
		"targetRoomId": string(remote),
	})
}

// End hangs up whatever call is in progress.
func (c *Client) End() error {
	remote := c.remoteRoom()
	c.Session.End()
	if remote == "" {
		return nil
	}
	return c.send(map[string]any{
		"type":         protocol.TypeCallEnd,
		"targetRoomId": string(remote),
	})
}

// SendCandidate trickles a local candidate to the remote party.
func (c *Client) SendCandidate(cand webrtc.ICECandidateInit) error {
	remote := c.remoteRoom()
	if remote == "" {
		return call.ErrNoCall
	}
	payload, err := json.Marshal(cand)
	if err != nil {
		return err
	}
	return c.send(map[string]any{
		"type":         protocol.TypeCandidate,
		"targetRoomId": string(remote),
		"payload":      json.RawMessage(payload),
	})
}

// remoteRoom extracts the room half of the session's remote endpoint.
func (c *Client) remoteRoom() domain.RoomID {
	_, room, ok := domain.SplitEndpointID(c.Session.Remote())
	if !ok {
		return ""
	}
	return room
}

func (c *Client) send(v map[string]any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			// Our own transport is gone: tear down any session.
			c.Session.End()
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame dropped")
		return
	}

	switch env.Type {
	case protocol.TypeMe:
		c.handleMe(data)
	case protocol.TypeRegistered:
		c.handleRegistered(data)
	case protocol.TypeRoomStatus:
		c.handleRoomStatus(data)
	case protocol.TypeCallRequest:
		c.handleCallRequest(env)
	case protocol.TypeCallAccept:
		c.handleCallResponse(true)
	case protocol.TypeCallDecline:
		c.handleCallResponse(false)
	case protocol.TypeCallResponse:
		c.handleCallResponse(env.Accepted != nil && *env.Accepted)
	case protocol.TypeCallEnd:
		c.Session.End()
		c.emit(c.handlers.OnCallEnded)
	case protocol.TypeOffer:
		c.handleOffer(env)
	case protocol.TypeAnswer:
		c.handleAnswer(env)
	case protocol.TypeCandidate:
		c.handleCandidate(env)
	case protocol.TypeError:
		c.handleError(data)
	case protocol.TypePong:
	default:
		log.Warn().Str("module", "client").Str("type", string(env.Type)).Msg("unknown message")
	}
}

func (c *Client) handleMe(data []byte) {
	var msg struct {
		ID domain.EndpointID `json:"id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.mu.Lock()
	c.peerID = msg.ID
	c.mu.Unlock()
}

func (c *Client) handleRegistered(data []byte) {
	var msg struct {
		HouseholdID domain.HouseholdID `json:"householdId"`
		RoomID      domain.RoomID      `json:"roomId"`
		RoomName    string             `json:"roomName"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.mu.Lock()
	c.household = msg.HouseholdID
	c.room = msg.RoomID
	c.mu.Unlock()
	if c.handlers.OnRegistered != nil {
		c.handlers.OnRegistered(msg.HouseholdID, msg.RoomID, msg.RoomName)
	}
}

func (c *Client) handleRoomStatus(data []byte) {
	var msg protocol.RoomStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad room status")
		return
	}

	// A remote party going offline ends the call locally, same as a
	// send failure would.
	c.mu.Lock()
	hh := c.household
	c.mu.Unlock()
	for _, r := range msg.Rooms {
		if !r.Online && c.Session.RemoteOffline(domain.MemberEndpointID(hh, r.RoomID)) {
			c.emit(c.handlers.OnCallEnded)
		}
	}
	if c.handlers.OnRoomStatus != nil {
		c.handlers.OnRoomStatus(msg.Rooms)
	}
}

func (c *Client) handleCallRequest(env *protocol.Envelope) {
	from := c.senderEndpoint(env)
	mode := env.CallMode
	if !mode.Valid() {
		mode = domain.CallModeAudio
	}
	if err := c.Session.HandleRequest(from, mode); err != nil {
		// Busy: refuse without disturbing the session in progress.
		_ = c.send(map[string]any{
			"type":         protocol.TypeCallDecline,
			"targetRoomId": env.SenderRoomID,
		})
		return
	}
	if c.handlers.OnIncomingCall != nil {
		c.handlers.OnIncomingCall(domain.RoomID(env.SenderRoomID), mode)
	}
}

func (c *Client) handleCallResponse(accepted bool) {
	makeOffer, err := c.Session.HandleResponse(accepted)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("stray call response")
		return
	}
	if !accepted {
		c.emit(c.handlers.OnCallDeclined)
		return
	}
	if makeOffer {
		c.sendOffer()
	}
	c.emit(c.handlers.OnCallAccepted)
}

func (c *Client) sendOffer() {
	offer, err := c.neg.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("create offer")
		c.abortCall()
		return
	}
	payload, err := json.Marshal(offer)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("marshal offer")
		c.abortCall()
		return
	}
	remote := c.remoteRoom()
	if err := c.Session.OfferSent(); err != nil {
		return
	}
	_ = c.send(map[string]any{
		"type":         protocol.TypeOffer,
		"targetRoomId": string(remote),
		"payload":      json.RawMessage(payload),
	})
}

func (c *Client) handleOffer(env *protocol.Envelope) {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(env.Payload, &sd); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad offer payload")
		return
	}
	if err := c.Session.HandleOffer(sd); err != nil {
		if errors.Is(err, call.ErrUnexpectedOffer) {
			// Protocol violation: abort and tell the peer.
			_ = c.send(map[string]any{
				"type":         protocol.TypeCallEnd,
				"targetRoomId": env.SenderRoomID,
			})
			c.emit(c.handlers.OnCallEnded)
		}
		return
	}
	answer, err := c.neg.CreateAnswer(sd)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("create answer")
		c.abortCall()
		return
	}
	payload, err := json.Marshal(answer)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Msg("marshal answer")
		c.abortCall()
		return
	}
	_ = c.send(map[string]any{
		"type":         protocol.TypeAnswer,
		"targetRoomId": env.SenderRoomID,
		"payload":      json.RawMessage(payload),
	})
}

func (c *Client) handleAnswer(env *protocol.Envelope) {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(env.Payload, &sd); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad answer payload")
		return
	}
	if err := c.Session.HandleAnswer(sd); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("stray answer dropped")
		return
	}
	if err := c.neg.AcceptAnswer(sd); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("accept answer")
		c.abortCall()
	}
}

func (c *Client) handleCandidate(env *protocol.Envelope) {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(env.Payload, &cand); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad candidate payload")
		return
	}
	// Candidates outside an active session race setup/teardown and
	// are dropped without complaint.
	if !c.Session.HandleCandidate(cand) {
		return
	}
	if err := c.neg.AddCandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("add candidate")
	}
}

func (c *Client) handleError(data []byte) {
	var msg protocol.ErrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Code == protocol.CodeTargetUnavailable && c.Session.State() == call.StateCalling {
		c.Session.End()
		c.emit(c.handlers.OnCallEnded)
	}
	if c.handlers.OnError != nil {
		c.handlers.OnError(msg.Code, msg.Message)
	}
}

// abortCall hangs up after a local negotiation failure.
func (c *Client) abortCall() {
	_ = c.End()
	c.emit(c.handlers.OnCallEnded)
}

func (c *Client) senderEndpoint(env *protocol.Envelope) domain.EndpointID {
	if env.SenderRoomID != "" {
		c.mu.Lock()
		hh := c.household
		c.mu.Unlock()
		return domain.MemberEndpointID(hh, domain.RoomID(env.SenderRoomID))
	}
	return domain.EndpointID(env.SenderID)
}

func (c *Client) emit(h func()) {
	if h != nil {
		h()
	}
}
