package repository

import (
	"context"
	"time"

	"github.com/receiptfusion/backend/internal/database"
	"github.com/receiptfusion/backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ReceiptRepository struct {
	collection *mongo.Collection
}

func NewReceiptRepository(db *database.MongoDB) *ReceiptRepository {
	return &ReceiptRepository{
		collection: db.Collection(database.CollectionReceipts),
	}
}

func (r *ReceiptRepository) Create(ctx context.Context, receipt *models.StoredReceipt) error {
	receipt.CreatedAt = time.Now()
	res, err := r.collection.InsertOne(ctx, receipt)
	if err != nil {
		return err
	}
	receipt.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *ReceiptRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.StoredReceipt, error) {
	var receipt models.StoredReceipt
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.StoredReceipt, error) {
	var receipt models.StoredReceipt
	err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) List(ctx context.Context, skip, limit int64) ([]models.StoredReceipt, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var receipts []models.StoredReceipt
	if err := cursor.All(ctx, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *ReceiptRepository) ListByStore(ctx context.Context, store string, skip, limit int64) ([]models.StoredReceipt, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"store": store}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var receipts []models.StoredReceipt
	if err := cursor.All(ctx, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *ReceiptRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

func (r *ReceiptRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
