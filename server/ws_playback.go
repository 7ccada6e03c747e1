package server

import (
	"errors"
	"net/http"
	"time"

	"artistsfirst/core/auth"
	"artistsfirst/logger"
	"artistsfirst/playback"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClientMessage is what the player sends over the playback socket.
// "tick" carries elapsed playing time since the previous tick; "toggle"
// and "stop" mirror the HTTP endpoints so the player can stay on one
// connection.
type wsClientMessage struct {
	Type      string `json:"type"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
}

type wsServerMessage struct {
	Type     string             `json:"type"`
	Snapshot *playback.Snapshot `json:"snapshot,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// WebSocketPlaybackHandler feeds player progress into the playback gate
// and pushes session snapshots back. Browsers cannot set headers on
// websocket dials, so the token rides in the query string.
func (h *APIHandler) WebSocketPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := auth.ParseToken(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	logger.Info("Playback socket opened", logger.Int64("userId", claims.UserID))

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Playback socket read failed", logger.ErrorField(err))
			}
			return
		}

		var snap playback.Snapshot
		var opErr error
		switch msg.Type {
		case "tick":
			snap, opErr = h.gate.Tick(r.Context(), claims.UserID, time.Duration(msg.ElapsedMs)*time.Millisecond)
		case "toggle":
			snap, opErr = h.gate.Toggle(claims.UserID)
		case "stop":
			snap = h.gate.Stop(claims.UserID)
		case "session":
			snap, opErr = h.gate.Session(claims.UserID)
		default:
			opErr = errors.New("unknown message type: " + msg.Type)
		}

		reply := wsServerMessage{Type: "snapshot", Snapshot: &snap}
		if opErr != nil {
			reply = wsServerMessage{Type: "error", Error: opErr.Error()}
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("Playback socket write failed", logger.ErrorField(err))
			return
		}
	}
}
