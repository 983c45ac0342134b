package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/app"
	"github.com/dkeye/Nexus/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(
	ctx context.Context,
	cancel context.CancelFunc,
	es *endpointSession,
	c *WsSignalConn,
) {
	defer func() {
		id := es.current()
		log.Info().Str("module", "signal").Str("id", string(id)).Msg("readPump closing")
		ctl.Orch.Disconnect(id, c)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").
					Str("id", string(es.current())).Msg("readPump read error")
				return
			}
			ctl.handleSignal(es, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(es *endpointSession, c *WsSignalConn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		// Malformed frames are dropped; the connection survives.
		log.Warn().Err(err).Str("module", "signal").Msg("bad json, frame dropped")
		return
	}

	switch {
	case env.Type == protocol.TypeRegister:
		ctl.handleRegister(es, c, env)
	case env.Type == protocol.TypePing:
		ctl.handlePing(c)
	case protocol.Routable(env.Type):
		ctl.handleRouted(es, c, env, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

// handleRouted hands a peer-to-peer frame to the relay. The only error
// surfaced to the sender is an unavailable target; everything else is
// between the two endpoints' own state machines.
func (ctl *SignalWSController) handleRouted(
	es *endpointSession,
	c *WsSignalConn,
	env *protocol.Envelope,
	data []byte,
) {
	if err := ctl.Orch.Relay.Route(es.sender(), env, data); err != nil {
		if errors.Is(err, app.ErrTargetUnavailable) {
			ctl.sendError(c, protocol.CodeTargetUnavailable, "target not connected")
		}
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code, msg string) {
	ctl.sendJSON(c, protocol.ErrorMessage{
		Type:    protocol.TypeError,
		Code:    code,
		Message: msg,
	})
}
