package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"snipcollab/internal/merge"
	"snipcollab/internal/snippet"
	"snipcollab/internal/store"
)

// MergeHandler reconciles a client's local copy against the authoritative
// snippet content after a reconnect or suspected divergence. A conflict is a
// normal 200 response with success=false; resolution happens in the UI.
type MergeHandler struct {
	Store    store.SessionStore
	Snippets *snippet.Registry
}

type mergeBody struct {
	Base  string `json:"base"`
	Local string `json:"local"`
}

func (h *MergeHandler) Resolve(c *gin.Context) {
	token := c.Param("token")
	sess, err := h.Store.Get(c.Request.Context(), token)
	if err != nil {
		c.JSON(sessionStatus(err), gin.H{"error": "Session not found"})
		return
	}

	var body mergeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	snip, ok := h.Snippets.Get(sess.SnippetID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Snippet not found"})
		return
	}

	result := merge.Merge(body.Base, body.Local, snip.Content)
	if result.Success {
		h.Snippets.SetContent(sess.SnippetID, result.Merged)
		_ = h.Store.Touch(c.Request.Context(), token)
	}
	c.JSON(http.StatusOK, result)
}
