package models

import "time"

// Category groups professionals for matching. Aggregate counters are
// recomputed by the background worker, not on the request path.
type Category struct {
	Name              string    `bson:"name" json:"name"`
	Description       string    `bson:"description,omitempty" json:"description,omitempty"`
	Enabled           bool      `bson:"enabled" json:"enabled"`
	ProfessionalCount int       `bson:"professionalCount" json:"professionalCount"`
	SessionCount      int       `bson:"sessionCount" json:"sessionCount"`
	AvgResponseTime   int       `bson:"avgResponseTime" json:"avgResponseTime"`
	CreatedAt         time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ResponseTimeBucket derives the category's advertised response time (in
// minutes) from its session volume.
func (c *Category) ResponseTimeBucket() int {
	switch {
	case c.SessionCount > 100:
		return 1
	case c.SessionCount > 50:
		return 2
	case c.SessionCount > 20:
		return 3
	default:
		return 5
	}
}
