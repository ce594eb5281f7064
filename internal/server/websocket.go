package server

import (
	"bytes"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lumahq/luma/internal/lua"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsReply is one reply frame: the script value on success, the error kind and
// message on failure.
type wsReply struct {
	OK    bool   `json:"ok"`
	Value any    `json:"value,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleWebSocket upgrades the connection and evaluates the script once per
// received text message, with the message bytes as the script input.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("connection_id", uuid.NewString())
	logger.Debug("websocket connected", "remote", r.RemoteAddr)

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		st := &lua.State{}
		outcome, err := s.runScript(r.Context(), bytes.NewReader(message), st)
		reply := wsReply{OK: err == nil}
		if err != nil {
			logger.Error("script failed", "kind", lua.ErrorKind(err), "error", err)
			reply.Kind = lua.ErrorKind(err)
			reply.Error = err.Error()
		} else {
			logger.Debug("script evaluated", "duration", outcome.Duration)
			reply.Value = outcome.Value
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.Error("websocket write failed", "error", err)
			return
		}
	}
}
