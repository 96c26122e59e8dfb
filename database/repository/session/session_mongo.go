package sessionRepo

import (
	"context"
	"time"

	"quickconnect/database"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoSessionRepo implements Repository using MongoDB.
type MongoSessionRepo struct {
	coll     *mongo.Collection
	messages *mongo.Collection
}

// NewMongoSessionRepo creates a new Repository backed by MongoDB.
func NewMongoSessionRepo() Repository {
	db := database.MongoClient.Database("quickconnect")
	return &MongoSessionRepo{
		coll:     db.Collection("sessions"),
		messages: db.Collection("chat_messages"),
	}
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
