package sessionRepo

import (
	"errors"
	"fmt"
	"time"

	"quickconnect/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Insert stores a new session document.
func (r *MongoSessionRepo) Insert(sess *models.Session) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	_, err := r.coll.InsertOne(ctx, sess)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Update replaces the stored session document.
func (r *MongoSessionRepo) Update(sess *models.Session) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": sess.ID}
	update := bson.M{"$set": sess}
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	return nil
}

func (r *MongoSessionRepo) GetByID(id string) (*models.Session, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var sess models.Session
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&sess); err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", id, err)
	}
	return &sess, nil
}

// GetActiveByPair returns the non-terminal session between a professional and
// a client, if any.
func (r *MongoSessionRepo) GetActiveByPair(professionalID, clientID string) (*models.Session, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{
		"professionalId": professionalID,
		"clientId":       clientID,
		"status": bson.M{"$in": []string{
			models.SessionPending, models.SessionActive, models.SessionInProgress,
		}},
	}
	var sess models.Session
	err := r.coll.FindOne(ctx, filter).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active session for %s/%s: %w", professionalID, clientID, err)
	}
	return &sess, nil
}

// SaveMessage persists a chat message exchanged within a session.
func (r *MongoSessionRepo) SaveMessage(msg *models.ChatMessage) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	_, err := r.messages.InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}
