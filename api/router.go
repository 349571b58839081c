// Package api exposes the wheel command surface over HTTP and WebSocket
package api

import (
	"net/http"

	"spinwheel/realtime"
	"spinwheel/service"

	"github.com/gin-gonic/gin"
)

// Dependencies are the services the router is built from
type Dependencies struct {
	Wheels service.WheelService
	Users  service.UserService
	Ledger service.LedgerService
	Hub    *realtime.Hub
}

// NewRouter builds the gin engine with every route registered
func NewRouter(deps Dependencies, release bool) *gin.Engine {
	if release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	wheels := &wheelHandler{wheels: deps.Wheels}
	users := &userHandler{users: deps.Users, ledger: deps.Ledger}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/users", users.list)
		api.POST("/users", users.create)
		api.GET("/users/:id", users.get)
		api.GET("/users/:id/transactions", users.transactions)
		api.POST("/users/:id/grant", users.grant)

		api.GET("/wheels", wheels.list)
		api.POST("/wheels", wheels.create)
		api.GET("/wheels/:id", wheels.get)
		api.GET("/wheels/:id/participants", wheels.participants)
		api.POST("/wheels/:id/join", wheels.join)
		api.POST("/wheels/:id/start", wheels.start)
		api.POST("/wheels/:id/abort", wheels.abort)
	}

	if deps.Hub != nil {
		r.GET("/ws", realtime.ServeWS(deps.Hub))
	}
	return r
}
