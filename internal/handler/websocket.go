package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"snipcollab/internal/auth"
	"snipcollab/internal/hub"
	"snipcollab/internal/model"
	"snipcollab/internal/store"
)

// WebSocketHandler is the genuine duplex channel: clients that can hold a
// persistent connection get push delivery of the same update envelopes the
// polling endpoint serves.
type WebSocketHandler struct {
	Hub         *hub.Hub
	Store       store.SessionStore
	TokenConfig auth.TokenConfig
}

type wsClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes writes: broadcasts arrive from concurrent request
// goroutines and gorilla permits only one writer on a connection.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	sessionToken := c.Query("session")
	sess, err := h.Store.Join(c.Request.Context(), sessionToken, claims.UserID)
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": "Session not found"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := &hub.Connection{SessionToken: sessionToken, UserID: claims.UserID, Writer: &wsWriter{conn: ws}}
	h.Hub.Register(conn)
	defer func() {
		h.Hub.Unregister(conn)
		_ = ws.Close()
		ctx := c.Request.Context()
		if err := h.Store.Leave(ctx, sessionToken, claims.UserID); err == nil {
			_, _, _ = ingestUpdate(ctx, h.Store, h.Hub, sessionToken, claims.UserID,
				model.UpdateUserLeave, mustJSON(gin.H{"userId": claims.UserID}), conn)
		}
	}()

	_, _, _ = ingestUpdate(c.Request.Context(), h.Store, h.Hub, sessionToken, claims.UserID,
		model.UpdateUserJoin, mustJSON(gin.H{"userId": claims.UserID}), conn)

	// Roster snapshot straight to the new connection only.
	if payload, err := json.Marshal(model.Update{
		Type:         model.UpdateParticipants,
		Data:         mustJSON(gin.H{"participants": sess.Participants, "cursor_positions": sess.Cursors}),
		Timestamp:    time.Now().UnixMilli(),
		SessionToken: sessionToken,
	}); err == nil {
		_ = conn.Writer.Write(payload)
	}

	ws.SetReadLimit(1024 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if _, _, err := ingestUpdate(c.Request.Context(), h.Store, h.Hub, sessionToken,
			claims.UserID, msg.Type, msg.Data, conn); err != nil {
			// Session reaped or deleted from under us; the client will
			// reconnect through its normal path.
			return
		}
	}
}
