package professionalRepo

import (
	"fmt"
	"time"

	"quickconnect/models"

	"go.mongodb.org/mongo-driver/bson"
)

// Create inserts a new professional document.
func (r *MongoProfessionalRepo) Create(pro *models.Professional) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	_, err := r.coll.InsertOne(ctx, pro)
	if err != nil {
		return fmt.Errorf("failed to create professional: %w", err)
	}
	return nil
}

// Update modifies an existing professional document.
func (r *MongoProfessionalRepo) Update(pro *models.Professional) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": pro.ID}
	update := bson.M{"$set": pro}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update professional with id %s: %w", pro.ID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("professional with id %s not found", pro.ID)
	}
	return nil
}

// SaveLiveState persists the live availability fields for a professional.
func (r *MongoProfessionalRepo) SaveLiveState(id string, live models.LiveState) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": id}
	update := bson.M{"$set": bson.M{"live": live, "updatedAt": time.Now()}}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to save live state for professional %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("professional with id %s not found", id)
	}
	return nil
}

// SaveStats persists recomputed aggregate stats for a professional.
func (r *MongoProfessionalRepo) SaveStats(id string, stats models.Stats) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": id}
	update := bson.M{"$set": bson.M{"stats": stats, "updatedAt": time.Now()}}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to save stats for professional %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("professional with id %s not found", id)
	}
	return nil
}
