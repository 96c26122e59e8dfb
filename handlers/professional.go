package handlers

import (
	"net/http"
	"sort"
	"strconv"

	professionalRepo "quickconnect/database/repository/professional"
	"quickconnect/models"
	"quickconnect/services/matching"
	"quickconnect/services/registry"

	"github.com/gin-gonic/gin"
)

// GetProfessionalsByCategory returns the ranked candidates for a category,
// each annotated with its score breakdown.
func GetProfessionalsByCategory(coord *matching.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		category := c.Param("category")
		req := models.MatchRequest{
			Category: category,
			Preferences: models.MatchPreferences{
				MinRating: queryFloat(c, "min_rating"),
				MaxRate:   queryFloat(c, "max_rate"),
				Channel:   c.Query("channel"),
			},
		}
		candidates, err := coord.FindCandidates(c.Request.Context(), req)
		if err != nil {
			if matching.IsCode(err, matching.CodeNoCandidates) {
				c.JSON(http.StatusOK, gin.H{"category": category, "professionals": []models.Candidate{}})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch professionals", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": category, "professionals": candidates})
	}
}

// SearchProfessionals filters the directory by free text and constraints.
func SearchProfessionals(repo professionalRepo.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := professionalRepo.SearchFilters{
			Query:         c.Query("q"),
			Category:      c.Query("category"),
			MinRating:     queryFloat(c, "min_rating"),
			MaxRate:       queryFloat(c, "max_rate"),
			AvailableOnly: c.Query("available_only") == "true",
			OnlineOnly:    c.Query("online_only") == "true",
		}
		pros, err := repo.Search(filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(pros), "professionals": pros})
	}
}

// ListCategories summarizes the directory per category, including the
// advertised response-time bucket derived from session volume.
func ListCategories(repo professionalRepo.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		pros, err := repo.GetAll()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list categories", "details": err.Error()})
			return
		}
		byName := make(map[string]*models.Category)
		for _, p := range pros {
			if !p.IsApproved() {
				continue
			}
			cat, ok := byName[p.PrimaryCategory]
			if !ok {
				cat = &models.Category{Name: p.PrimaryCategory, Enabled: true}
				byName[p.PrimaryCategory] = cat
			}
			cat.ProfessionalCount++
			cat.SessionCount += p.Stats.TotalSessions
		}
		out := make([]models.Category, 0, len(byName))
		for _, cat := range byName {
			cat.AvgResponseTime = cat.ResponseTimeBucket()
			out = append(out, *cat)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		c.JSON(http.StatusOK, gin.H{"categories": out})
	}
}

// UpdatePresence is the online/available heartbeat for a professional's app.
func UpdatePresence(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var input struct {
			Online    *bool `json:"online"`
			Available *bool `json:"available"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
			return
		}
		if input.Online != nil {
			if err := reg.SetOnline(id, *input.Online); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown professional"})
				return
			}
		}
		if input.Available != nil {
			if err := reg.SetAvailable(id, *input.Available); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": "availability change refused", "details": err.Error()})
				return
			}
		}
		live, _ := reg.LiveState(id)
		c.JSON(http.StatusOK, gin.H{"id": id, "live": live})
	}
}

func queryFloat(c *gin.Context, name string) float64 {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
