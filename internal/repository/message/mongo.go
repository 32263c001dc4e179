package message

import (
	"context"
	"fmt"
	"time"

	"e2e_relay/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	MongoStore struct {
		collection *mongo.Collection
		now        func() time.Time
	}
)

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection("messages"),
		now:        time.Now,
	}
}

// EnsureIndexes creates the pending-replay index. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "receiverId", Value: 1},
			{Key: "delivered", Value: 1},
			{Key: "createdAt", Value: 1},
		},
	})
	return err
}

func (s *MongoStore) Create(ctx context.Context, senderID, receiverID, payload string) (*model.Message, error) {
	m, err := newMessage(senderID, receiverID, payload, s.now())
	if err != nil {
		return nil, err
	}
	// stored with millisecond precision; keep the returned copy identical
	m.CreatedAt = m.CreatedAt.Truncate(time.Millisecond)

	if _, err := s.collection.InsertOne(ctx, m); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (s *MongoStore) FetchPending(ctx context.Context, receiverID string) ([]*model.Message, error) {
	filter := bson.M{
		"receiverId": receiverID,
		"delivered":  false,
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	})

	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find pending: %w", err)
	}
	defer cur.Close(ctx)

	var res []*model.Message
	if err := cur.All(ctx, &res); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return res, nil
}

func (s *MongoStore) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	filter := bson.M{
		"_id":       bson.M{"$in": ids},
		"delivered": false,
	}
	update := bson.M{"$set": bson.M{"delivered": true}}

	if _, err := s.collection.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
