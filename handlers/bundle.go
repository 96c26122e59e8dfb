// File: quickconnect/handlers/bundle.go
package handlers

import (
	professionalRepo "quickconnect/database/repository/professional"
	sessionRepo "quickconnect/database/repository/session"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	ProfessionalRepo professionalRepo.Repository
	SessionRepo      sessionRepo.Repository

	// Professional endpoints
	GetByCategoryHandler  gin.HandlerFunc
	SearchHandler         gin.HandlerFunc
	UpdatePresenceHandler gin.HandlerFunc
	ListCategoriesHandler gin.HandlerFunc

	// Matching endpoints
	RunMatchHandler    gin.HandlerFunc
	ReserveHandler     gin.HandlerFunc
	ReleaseHandler     gin.HandlerFunc
	ConfirmHandler     gin.HandlerFunc
	ReserveBestHandler gin.HandlerFunc

	// Session endpoints
	GetSessionHandler      gin.HandlerFunc
	CompleteSessionHandler gin.HandlerFunc
	RateSessionHandler     gin.HandlerFunc
	SessionStatusHandler   gin.HandlerFunc

	// Websocket endpoints
	BrowseSocketHandler  gin.HandlerFunc
	SessionSocketHandler gin.HandlerFunc
}
