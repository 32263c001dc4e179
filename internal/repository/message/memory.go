package message

import (
	"context"
	"sync"
	"time"

	"e2e_relay/internal/model"
)

type MemoryStore struct {
	mu         sync.RWMutex
	messages   map[string]*model.Message
	byReceiver map[string][]string // receiverID -> ids in creation order
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:   make(map[string]*model.Message),
		byReceiver: make(map[string][]string),
		now:        time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, senderID, receiverID, payload string) (*model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := newMessage(senderID, receiverID, payload, s.now())
	if err != nil {
		return nil, err
	}
	s.messages[m.ID] = m
	s.byReceiver[receiverID] = append(s.byReceiver[receiverID], m.ID)

	cpy := *m
	return &cpy, nil
}

func (s *MemoryStore) FetchPending(ctx context.Context, receiverID string) ([]*model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*model.Message
	for _, id := range s.byReceiver[receiverID] {
		m := s.messages[id]
		if m.Delivered {
			continue
		}
		cpy := *m
		res = append(res, &cpy)
	}
	return res, nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			m.Delivered = true
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cpy := *m
	return &cpy, nil
}
