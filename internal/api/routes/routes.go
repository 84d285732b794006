package routes

import (
	"poll-service/internal/api/handlers"
	"poll-service/internal/api/middleware"
	"poll-service/internal/services"
	"poll-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type Router struct {
	engine      *gin.Engine
	wsHandler   *handlers.WSHandler
	pollHandler *handlers.PollHandler
}

func NewRouter(hub *websocket.Hub, pollService *services.PollSyncService) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogApi())

	return &Router{
		engine:      engine,
		wsHandler:   handlers.NewWSHandler(hub),
		pollHandler: handlers.NewPollHandler(pollService),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	// WebSocket endpoint for poll synchronization
	api.GET("/ws", r.wsHandler.HandleWebSocket)

	polls := api.Group("/polls")
	{
		polls.POST("", r.pollHandler.CreatePoll)
		polls.GET("/:id", r.pollHandler.GetPoll)
		polls.POST("/:id/vote", r.pollHandler.CastVote)
		polls.GET("/:id/stats", r.pollHandler.GetPollStats)
		polls.GET("/:id/view", r.pollHandler.GetPollView)
		polls.POST("/:id/deactivate", r.pollHandler.DeactivatePoll)
		polls.DELETE("/:id", r.pollHandler.DeletePoll)
	}

	channels := api.Group("/channels")
	{
		channels.GET("/:id/polls", r.pollHandler.GetChannelPolls)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
