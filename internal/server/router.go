package server

import (
	"github.com/gin-gonic/gin"
	"snipcollab/internal/auth"
	"snipcollab/internal/handler"
	"snipcollab/internal/hub"
	"snipcollab/internal/middleware"
	"snipcollab/internal/snippet"
	"snipcollab/internal/store"
)

type Deps struct {
	Store       store.SessionStore
	Snippets    *snippet.Registry
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	if deps.Hub == nil {
		deps.Hub = hub.New()
	}

	sessionHandler := &handler.SessionHandler{Store: deps.Store, Hub: deps.Hub}
	updateHandler := &handler.UpdateHandler{Store: deps.Store, Hub: deps.Hub}
	mergeHandler := &handler.MergeHandler{Store: deps.Store, Snippets: deps.Snippets}

	collab := r.Group("/collaboration")
	collab.Use(middleware.RequireAuth(deps.TokenConfig))
	collab.POST("/sessions", sessionHandler.Create)
	collab.GET("/sessions/:token", sessionHandler.Get)
	collab.DELETE("/sessions/:token", sessionHandler.Delete)
	collab.POST("/sessions/:token/leave", sessionHandler.Leave)
	collab.POST("/sessions/:token/updates", updateHandler.Append)
	collab.GET("/sessions/:token/updates", updateHandler.List)
	collab.POST("/sessions/:token/merge", mergeHandler.Resolve)

	// The duplex channel authenticates via query token; browsers cannot set
	// headers on WebSocket dials.
	wsHandler := &handler.WebSocketHandler{Hub: deps.Hub, Store: deps.Store, TokenConfig: deps.TokenConfig}
	r.GET("/collaboration/ws", wsHandler.Serve)

	return r
}
