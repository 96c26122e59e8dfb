package handlers

import (
	"errors"
	"net/http"

	"quickconnect/models"
	"quickconnect/services/matching"

	"github.com/gin-gonic/gin"
)

// RunMatch runs the matching algorithm for a client's preferences and returns
// the ranked candidate list without reserving anyone.
func RunMatch(coord *matching.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		if req.Category == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
			return
		}
		candidates, err := coord.FindCandidates(c.Request.Context(), req)
		if err != nil {
			writeMatchError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidates": candidates})
	}
}

// ReserveProfessional places the negotiation lock on a specific professional.
func ReserveProfessional(coord *matching.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			ProfessionalID string `json:"professionalId"`
			ClientID       string `json:"clientId"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		if input.ProfessionalID == "" || input.ClientID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "professionalId and clientId are required"})
			return
		}
		res, err := coord.Reserve(input.ProfessionalID, input.ClientID)
		if err != nil {
			writeMatchError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reservation": res})
	}
}

// ReserveBest matches and reserves in one step, walking the ranked list until
// a lock succeeds.
func ReserveBest(coord *matching.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		if req.Category == "" || req.ClientID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category and clientId are required"})
			return
		}
		res, cand, err := coord.ReserveBest(c.Request.Context(), req)
		if err != nil {
			writeMatchError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reservation": res, "candidate": cand})
	}
}

// ReleaseReservation abandons a held reservation.
func ReleaseReservation(coord *matching.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var res models.Reservation
		if err := c.ShouldBindJSON(&res); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		if err := coord.Abandon(res); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "release failed", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"released": res.ProfessionalID})
	}
}

// ConfirmReservation converts a reservation into a pending session.
func ConfirmReservation(coord *matching.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Reservation models.Reservation `json:"reservation"`
			Channel     string             `json:"channel"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		sess, err := coord.Confirm(c.Request.Context(), input.Reservation, input.Channel)
		if err != nil {
			writeMatchError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}

func writeMatchError(c *gin.Context, err error) {
	var me *matching.MatchError
	if !errors.As(err, &me) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusConflict
	if me.Code == matching.CodeNoCandidates {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": me.Message, "code": me.Code})
}
