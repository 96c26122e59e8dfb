package routes

import (
	"net/http"
	"time"

	"quickconnect/handlers"
	"quickconnect/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterProfessionalRoutes registers directory and presence endpoints.
func RegisterProfessionalRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/professionals")
	{
		api.GET("/category/:category", hb.GetByCategoryHandler)
		api.GET("/search", hb.SearchHandler)
		api.POST("/:id/presence", hb.UpdatePresenceHandler)
	}
	r.GET("/api/categories", hb.ListCategoriesHandler)
}

// RegisterMatchRoutes sets up the endpoints for the matching engine.
func RegisterMatchRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/match")
	{
		api.POST("/run", hb.RunMatchHandler)
		api.POST("/reserve", hb.ReserveHandler)
		api.POST("/reserve-best", hb.ReserveBestHandler)
		api.POST("/release", hb.ReleaseHandler)
		api.POST("/confirm", hb.ConfirmHandler)
	}
}

// RegisterSessionRoutes registers session lifecycle endpoints.
func RegisterSessionRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/sessions")
	{
		api.GET("/:id", hb.GetSessionHandler)
		api.POST("/:id/complete", hb.CompleteSessionHandler)
		api.POST("/:id/rate", hb.RateSessionHandler)
		api.POST("/:id/status", hb.SessionStatusHandler)
	}
}

// RegisterSocketRoutes registers the realtime websocket endpoints.
func RegisterSocketRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/ws/quickconnect/:category", hb.BrowseSocketHandler)
	r.GET("/ws/session/:professional_id/:client_id", hb.SessionSocketHandler)
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Hi, I'm QuickConnect"})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	// Setup global middleware (e.g., CORS) here.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware())

	RegisterHealthRoute(r)
	RegisterProfessionalRoutes(r, hb)
	RegisterMatchRoutes(r, hb)
	RegisterSessionRoutes(r, hb)
	RegisterSocketRoutes(r, hb)
}
