package signal

import "github.com/dkeye/Nexus/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type protocol.Type `json:"type"`
	}{
		Type: protocol.TypePong,
	}
	ctl.sendJSON(conn, resp)
}
