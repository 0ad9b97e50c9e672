package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"snipcollab/internal/hub"
	"snipcollab/internal/middleware"
	"snipcollab/internal/model"
	"snipcollab/internal/store"
)

type UpdateHandler struct {
	Store store.SessionStore
	Hub   *hub.Hub
}

type appendUpdateBody struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (h *UpdateHandler) Append(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body appendUpdateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token := c.Param("token")
	stamped, dropped, err := ingestUpdate(c.Request.Context(), h.Store, h.Hub, token, userID, body.Type, body.Data, nil)
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": "Session not found"})
		return
	}
	if dropped {
		c.JSON(http.StatusOK, gin.H{"ok": true, "dropped": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "timestamp": stamped.Timestamp})
}

func (h *UpdateHandler) List(c *gin.Context) {
	token := c.Param("token")

	since := int64(0)
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor format"})
			return
		}
		since = v
	}

	updates, err := h.Store.UpdatesSince(c.Request.Context(), token, since)
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updates": updates})
}

type cursorData struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// ingestUpdate is the single ingress for broadcast updates, shared by the
// HTTP append endpoint and the WebSocket read loop. Malformed payloads are
// dropped with a warning rather than surfaced: one bad message must never
// stall the whole session. The stamped update is fanned out to the session's
// live connections, skipping sender.
func ingestUpdate(ctx context.Context, st store.SessionStore, hb *hub.Hub, token, userID, typ string, data json.RawMessage, sender *hub.Connection) (model.Update, bool, error) {
	if !model.KnownUpdateType(typ) {
		log.Printf("updates: dropping update with unknown type %q in session %s", typ, token)
		return model.Update{}, true, nil
	}

	switch typ {
	case model.UpdateTextChange:
		var op model.Operation
		if err := json.Unmarshal(data, &op); err != nil {
			log.Printf("updates: dropping undecodable operation in session %s: %v", token, err)
			return model.Update{}, true, nil
		}
		if err := op.Validate(); err != nil {
			log.Printf("updates: dropping operation in session %s: %v", token, err)
			return model.Update{}, true, nil
		}
		op.UserID = userID
		data = mustJSON(op)

	case model.UpdateCursor:
		var cur cursorData
		if err := json.Unmarshal(data, &cur); err != nil {
			log.Printf("updates: dropping undecodable cursor move in session %s: %v", token, err)
			return model.Update{}, true, nil
		}
		if err := st.UpdateCursor(ctx, token, userID, cur.Line, cur.Ch); err != nil {
			return model.Update{}, false, err
		}
		data = mustJSON(gin.H{"userId": userID, "line": cur.Line, "ch": cur.Ch})
	}

	stamped, err := st.AppendUpdate(ctx, token, model.Update{Type: typ, Data: data})
	if err != nil {
		return model.Update{}, false, err
	}

	if hb != nil {
		if payload, err := json.Marshal(stamped); err == nil {
			hb.Broadcast(token, payload, sender)
		}
	}
	return stamped, false, nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
