package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"snipcollab/internal/hub"
	"snipcollab/internal/middleware"
	"snipcollab/internal/model"
	"snipcollab/internal/store"
)

type SessionHandler struct {
	Store store.SessionStore
	Hub   *hub.Hub
}

type createSessionBody struct {
	SnippetID string `json:"snippet_id"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil || body.SnippetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.Store.Create(c.Request.Context(), body.SnippetID, userID)
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": err.Error()})
		return
	}

	_, _, _ = ingestUpdate(c.Request.Context(), h.Store, h.Hub, sess.Token, userID,
		model.UpdateUserJoin, mustJSON(gin.H{"userId": userID}), nil)

	c.JSON(http.StatusOK, sessionResponse(sess))
}

func (h *SessionHandler) Get(c *gin.Context) {
	token := c.Param("token")
	sess, err := h.Store.Get(c.Request.Context(), token)
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// Delete ends the session for everyone. Host-only in intent; not enforced at
// this layer.
func (h *SessionHandler) Delete(c *gin.Context) {
	token := c.Param("token")
	if err := h.Store.Delete(c.Request.Context(), token); err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *SessionHandler) Leave(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	token := c.Param("token")
	if err := h.Store.Leave(c.Request.Context(), token, userID); err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": "Session not found"})
		return
	}

	_, _, _ = ingestUpdate(c.Request.Context(), h.Store, h.Hub, token, userID,
		model.UpdateUserLeave, mustJSON(gin.H{"userId": userID}), nil)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func sessionResponse(sess model.Session) gin.H {
	return gin.H{
		"session_token":    sess.Token,
		"snippet_id":       sess.SnippetID,
		"host_user_id":     sess.HostUserID,
		"participants":     sess.Participants,
		"cursor_positions": sess.Cursors,
		"version":          sess.Version,
		"created_at":       sess.CreatedAt,
		"last_activity":    sess.LastActivity,
	}
}

func sessionStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrExpired):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
