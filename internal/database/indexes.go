package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates all necessary MongoDB indexes for optimal query performance.
// This should be called once during application startup.
func EnsureIndexes(db *MongoDB) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("📇 Creating MongoDB indexes...")

	// Receipts collection indexes
	createIndexes(ctx, db.Collection(CollectionReceipts), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_receipts_session_id"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_receipts_created_at"),
		},
		{
			Keys:    bson.D{{Key: "store", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetSparse(true).SetName("idx_receipts_store_created_at"),
		},
		{
			Keys:    bson.D{{Key: "confirmed_by", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetSparse(true).SetName("idx_receipts_confirmed_by_created_at"),
		},
	})

	log.Println("✅ MongoDB indexes created successfully")
}

func createIndexes(ctx context.Context, collection *mongo.Collection, indexes []mongo.IndexModel) {
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		log.Printf("⚠️  Warning: Failed to create indexes for %s: %v", collection.Name(), err)
	}
}
