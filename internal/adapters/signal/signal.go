package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/app"
	"github.com/dkeye/Nexus/internal/config"
	"github.com/dkeye/Nexus/internal/core"
	"github.com/dkeye/Nexus/internal/domain"
	"github.com/dkeye/Nexus/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch *app.Orchestrator
	Cfg  *config.Config
}

func NewSignalWSController(orch *app.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{Orch: orch, Cfg: cfg}
}

// WsSignalConn is the outbound half of one WebSocket connection. Sends
// are non-blocking: a full queue returns ErrBackpressure and the frame
// is dropped.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// endpointSession tracks which identifier this connection is currently
// registered under. It starts as the ad hoc peer ID handed out on
// connect and may be swapped for a household/room identity by register.
type endpointSession struct {
	mu       sync.Mutex
	id       domain.EndpointID
	roomID   domain.RoomID
	roomName string
}

func (es *endpointSession) current() domain.EndpointID {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.id
}

func (es *endpointSession) sender() app.SenderInfo {
	es.mu.Lock()
	defer es.mu.Unlock()
	return app.SenderInfo{ID: es.id, RoomID: es.roomID, RoomName: es.roomName}
}

func (es *endpointSession) setMember(id domain.EndpointID, room *domain.Room) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.id = id
	es.roomID = room.ID
	es.roomName = room.Name
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("token", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	id := ctl.Orch.Connect(conn)
	es := &endpointSession{id: id}

	ctl.sendJSON(conn, struct {
		Type protocol.Type     `json:"type"`
		ID   domain.EndpointID `json:"id"`
	}{protocol.TypeMe, id})

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, es, conn)
}
