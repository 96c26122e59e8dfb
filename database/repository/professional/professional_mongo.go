package professionalRepo

import (
	"context"
	"time"

	"quickconnect/database"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoProfessionalRepo implements Repository using MongoDB.
type MongoProfessionalRepo struct {
	coll *mongo.Collection
}

// NewMongoProfessionalRepo creates a new Repository backed by MongoDB.
func NewMongoProfessionalRepo() Repository {
	coll := database.MongoClient.Database("quickconnect").Collection("professionals")
	return &MongoProfessionalRepo{coll: coll}
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
