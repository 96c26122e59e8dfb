package professionalRepo

import (
	"fmt"
	"time"

	"quickconnect/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (r *MongoProfessionalRepo) GetByID(id string) (*models.Professional, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var pro models.Professional
	filter := bson.M{"id": id}
	if err := r.coll.FindOne(ctx, filter).Decode(&pro); err != nil {
		return nil, fmt.Errorf("failed to fetch professional with id %s: %w", id, err)
	}
	return &pro, nil
}

func (r *MongoProfessionalRepo) GetAll() ([]models.Professional, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list professionals: %w", err)
	}
	defer cursor.Close(ctx)

	var pros []models.Professional
	if err := cursor.All(ctx, &pros); err != nil {
		return nil, fmt.Errorf("failed to decode professionals: %w", err)
	}
	return pros, nil
}

// GetApprovedByCategory returns approved professionals belonging to a
// category, either as their primary category or as a membership.
func (r *MongoProfessionalRepo) GetApprovedByCategory(category string) ([]models.Professional, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"status": models.StatusApproved,
		"$or": []bson.M{
			{"primaryCategory": category},
			{"categories": category},
			{"specialization": bson.M{"$regex": primitive.Regex{Pattern: category, Options: "i"}}},
		},
	}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch professionals for category %s: %w", category, err)
	}
	defer cursor.Close(ctx)

	var pros []models.Professional
	if err := cursor.All(ctx, &pros); err != nil {
		return nil, fmt.Errorf("failed to decode professionals: %w", err)
	}
	return pros, nil
}

// Search applies the advanced search filters used by the REST surface.
func (r *MongoProfessionalRepo) Search(filters SearchFilters) ([]models.Professional, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	query := bson.M{"status": models.StatusApproved}
	if filters.Query != "" {
		re := primitive.Regex{Pattern: filters.Query, Options: "i"}
		query["$or"] = []bson.M{
			{"name": bson.M{"$regex": re}},
			{"specialization": bson.M{"$regex": re}},
			{"bio": bson.M{"$regex": re}},
		}
	}
	if filters.Category != "" {
		query["$and"] = []bson.M{{"$or": []bson.M{
			{"primaryCategory": filters.Category},
			{"categories": filters.Category},
		}}}
	}
	if filters.MinRating > 0 {
		query["stats.averageRating"] = bson.M{"$gte": filters.MinRating}
	}
	if filters.MaxRate > 0 {
		query["rates.base"] = bson.M{"$lte": filters.MaxRate}
	}
	if filters.AvailableOnly {
		query["live.available"] = true
	}
	if filters.OnlineOnly {
		query["live.online"] = true
	}

	cursor, err := r.coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search professionals: %w", err)
	}
	defer cursor.Close(ctx)

	var pros []models.Professional
	if err := cursor.All(ctx, &pros); err != nil {
		return nil, fmt.Errorf("failed to decode professionals: %w", err)
	}
	return pros, nil
}
