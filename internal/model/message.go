package model

import "time"

type (
	// Message is the relay's record of one opaque payload. Delivered flips
	// from false to true at most once and never back.
	Message struct {
		ID         string    `bson:"_id" json:"id"`
		SenderID   string    `bson:"senderId" json:"senderId"`
		ReceiverID string    `bson:"receiverId" json:"receiverId"`
		Payload    string    `bson:"payload" json:"payload"`
		CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
		Delivered  bool      `bson:"delivered" json:"delivered"`
	}

	// CachedMessage is a client-side record. Text is sealed by the caller
	// before it reaches the cache.
	CachedMessage struct {
		ID         string `json:"id"`
		SenderID   string `json:"senderId"`
		ReceiverID string `json:"receiverId"`
		Text       string `json:"text"`
		Timestamp  int64  `json:"timestamp"`
		Status     string `json:"status"`
	}

	Contact struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
)

const (
	StatusSent     = "sent"
	StatusReceived = "received"
)

// Counterpart returns the other side of the conversation from owner's view.
func (m *CachedMessage) Counterpart(owner string) string {
	if m.SenderID == owner {
		return m.ReceiverID
	}
	return m.SenderID
}
