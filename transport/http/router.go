package http

import (
	"github.com/gin-gonic/gin"

	"github.com/flotob/curia-sub008/service"
)

// SetupRouter sets up the Gin router.
func SetupRouter(handlers *Handlers, auth *service.AuthService) *gin.Engine {
	router := gin.Default()

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/challenge", handlers.Challenge)
		authGroup.POST("/verify", handlers.Verify)
		authGroup.POST("/anonymous", handlers.Anonymous)
		authGroup.POST("/logout", handlers.Logout)

		protected := authGroup.Group("")
		protected.Use(SessionRequired(auth))
		{
			protected.GET("/session", handlers.SessionStatus)
			protected.GET("/assertion", handlers.Assertion)
		}
	}

	locks := router.Group("/locks")
	{
		locks.PUT("/:id", handlers.PutLock)
		locks.GET("/:id", handlers.GetLock)
		locks.POST("/:id/evaluate", handlers.Evaluate)
	}

	return router
}
