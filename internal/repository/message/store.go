package message

import (
	"context"
	"time"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

// Store persists relay messages and their delivery flag. Implementations
// serialize writers internally.
type Store interface {
	// Create records a new pending message.
	Create(ctx context.Context, senderID, receiverID, payload string) (*model.Message, error)
	// FetchPending returns the receiver's undelivered messages, oldest first.
	FetchPending(ctx context.Context, receiverID string) ([]*model.Message, error)
	// MarkDelivered flips the given messages to delivered. Already delivered
	// and unknown ids are ignored.
	MarkDelivered(ctx context.Context, ids []string) error
	// Get returns nil, nil when the id is unknown.
	Get(ctx context.Context, id string) (*model.Message, error)
}

// newMessage stamps a fresh time-ordered id and creation time.
func newMessage(senderID, receiverID, payload string, now time.Time) (*model.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &model.Message{
		ID:         id.String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Payload:    payload,
		CreatedAt:  now.UTC(),
	}, nil
}
