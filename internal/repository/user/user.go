package user

import (
	"context"
	"fmt"
	"time"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is the directory of identities the relay has seen.
type Repository interface {
	// FindOrCreate returns the user for publicKey, creating it if unseen.
	FindOrCreate(ctx context.Context, publicKey string) (*model.User, error)
	// GetByPublicKey returns nil, nil when the identity is unknown.
	GetByPublicKey(ctx context.Context, publicKey string) (*model.User, error)
}

type (
	UserRepo struct {
		collection *mongo.Collection
	}
)

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		collection: db.Collection("users"),
	}
}

func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "publicKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *UserRepo) GetByPublicKey(ctx context.Context, publicKey string) (*model.User, error) {
	filter := bson.M{
		"publicKey": publicKey,
	}

	var user model.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &user, nil
}

// FindOrCreate upserts on publicKey so concurrent first sightings of the same
// identity converge on one document.
func (r *UserRepo) FindOrCreate(ctx context.Context, publicKey string) (*model.User, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	filter := bson.M{"publicKey": publicKey}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":       id.String(),
			"publicKey": publicKey,
			"createdAt": time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var user model.User
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's document is there now
		existing, getErr := r.GetByPublicKey(ctx, publicKey)
		if getErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	return &user, nil
}
