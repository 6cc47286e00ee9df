package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/speakerid-team/speaker-id/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg                 *config.Config
	conversationHandler *Conversation
	speakerHandler      *Speaker
	vectorIndexHandler  *VectorIndex
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, conversationHandler *Conversation, speakerHandler *Speaker, vectorIndexHandler *VectorIndex) *Router {
	return &Router{
		cfg:                 cfg,
		conversationHandler: conversationHandler,
		speakerHandler:      speakerHandler,
		vectorIndexHandler:  vectorIndexHandler,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group
	v1 := e.Group("/v1")

	rt.setupConversationRoutes(v1)
	rt.setupSpeakerRoutes(v1)
	rt.setupVectorIndexRoutes(v1)
}

// setupConversationRoutes configures conversation and utterance routes
func (rt *Router) setupConversationRoutes(g *echo.Group) {
	conversations := g.Group("/conversations")
	conversations.POST("", rt.conversationHandler.Ingest)
	conversations.POST("/process", rt.conversationHandler.Process)
	conversations.GET("", rt.conversationHandler.List)
	conversations.GET("/:key", rt.conversationHandler.Get)
	conversations.PATCH("/:key", rt.conversationHandler.UpdateDisplayName)
	conversations.DELETE("/:key", rt.conversationHandler.Delete)
	conversations.GET("/:key/audio", rt.conversationHandler.OriginalAudio)
	conversations.GET("/:key/utterances/:utterance/audio", rt.conversationHandler.UtteranceAudio)

	utterances := g.Group("/utterances")
	utterances.PATCH("/:id", rt.conversationHandler.UpdateUtterance)
	utterances.PUT("/:id/inclusion", rt.conversationHandler.ToggleInclusion)
}

// setupSpeakerRoutes configures speaker management routes
func (rt *Router) setupSpeakerRoutes(g *echo.Group) {
	speakers := g.Group("/speakers")
	speakers.GET("", rt.speakerHandler.List)
	speakers.GET("/:id", rt.speakerHandler.Details)
	speakers.PATCH("/:id", rt.speakerHandler.Rename)
	speakers.POST("/:id/reassign", rt.speakerHandler.Reassign)
	speakers.DELETE("/:id", rt.speakerHandler.Delete)
	speakers.PUT("/:id/pinecone-link", rt.speakerHandler.SetLink)
}

// setupVectorIndexRoutes configures speaker enrollment routes
func (rt *Router) setupVectorIndexRoutes(g *echo.Group) {
	index := g.Group("/index")
	index.GET("/speakers", rt.vectorIndexHandler.ListSpeakers)
	index.POST("/speakers", rt.vectorIndexHandler.AddSpeaker)
	index.POST("/speakers/:name/embeddings", rt.vectorIndexHandler.AddEmbedding)
	index.DELETE("/speakers/:name", rt.vectorIndexHandler.DeleteSpeaker)
	index.DELETE("/embeddings/:id", rt.vectorIndexHandler.DeleteEmbedding)
	index.POST("/reconcile", rt.vectorIndexHandler.Reconcile)
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": rt.cfg.Server.Environment,
	})
}
