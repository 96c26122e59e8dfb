package professionalRepo

import (
	"quickconnect/models"
)

// SearchFilters narrow a professional search.
type SearchFilters struct {
	Query         string
	Category      string
	MinRating     float64
	MaxRate       float64
	AvailableOnly bool
	OnlineOnly    bool
}

// Repository defines persistence for professionals. Live-state writes go
// through SaveLiveState so the availability registry remains the single
// mutation path for lock/availability fields.
type Repository interface {
	Create(pro *models.Professional) error
	Update(pro *models.Professional) error
	GetByID(id string) (*models.Professional, error)
	GetAll() ([]models.Professional, error)
	GetApprovedByCategory(category string) ([]models.Professional, error)
	Search(filters SearchFilters) ([]models.Professional, error)
	SaveLiveState(id string, live models.LiveState) error
	SaveStats(id string, stats models.Stats) error
}
