package handlers

import (
	"errors"
	"net/http"

	"quickconnect/models"
	"quickconnect/services/session"

	"github.com/gin-gonic/gin"
)

// GetSession returns a session by id.
func GetSession(lc *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := lc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}

// CompleteSession finalizes a session, optionally overriding the derived
// duration and cost. Completing an already-completed session returns the
// existing record unchanged.
func CompleteSession(lc *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			DurationMinutes *int     `json:"durationMinutes"`
			Cost            *float64 `json:"cost"`
			CallQuality     string   `json:"callQuality"`
			CallIssues      []string `json:"callIssues"`
		}
		// Body is optional; without overrides duration and cost derive from
		// recorded call windows or elapsed time.
		_ = c.ShouldBindJSON(&input)
		if input.CallQuality != "" && !models.ValidCallQuality(input.CallQuality) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported call quality", "quality": input.CallQuality})
			return
		}
		if input.CallQuality != "" || len(input.CallIssues) > 0 {
			if _, err := lc.RecordCallQuality(c.Request.Context(), c.Param("id"), input.CallQuality, input.CallIssues); err != nil {
				var invalid *session.InvalidTransitionError
				if !errors.As(err, &invalid) {
					writeSessionError(c, err)
					return
				}
				// Repeat completion: the record is already terminal and the
				// verdict from the first attempt stands.
			}
		}
		sess, err := lc.Complete(c.Request.Context(), c.Param("id"), input.DurationMinutes, input.Cost)
		if err != nil {
			writeSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}

// RateSession attaches a client rating to a completed session.
func RateSession(lc *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Rating int    `json:"rating"`
			Review string `json:"review"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		if err := lc.AttachRating(c.Request.Context(), c.Param("id"), input.Rating, input.Review); err != nil {
			writeSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rated": c.Param("id")})
	}
}

// UpdateSessionStatus applies an explicit status transition.
func UpdateSessionStatus(lc *session.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Status string `json:"status"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		id := c.Param("id")
		ctx := c.Request.Context()

		var err error
		switch input.Status {
		case "active":
			_, err = lc.Accept(ctx, id)
		case "declined":
			_, err = lc.Decline(ctx, id)
		case "cancelled":
			_, err = lc.Cancel(ctx, id)
		case "expired":
			_, err = lc.Expire(ctx, id)
		case "disconnected":
			_, err = lc.MarkDisconnected(ctx, id)
		case "completed":
			_, err = lc.Complete(ctx, id, nil, nil)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported status", "status": input.Status})
			return
		}
		if err != nil {
			writeSessionError(c, err)
			return
		}
		sess, _ := lc.Get(ctx, id)
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}

func writeSessionError(c *gin.Context, err error) {
	var invalid *session.InvalidTransitionError
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, session.ErrNotRateable):
		c.JSON(http.StatusConflict, gin.H{"error": "only completed sessions can be rated"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{"error": invalid.Error(), "from": invalid.From, "attempted": invalid.Attempted})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
