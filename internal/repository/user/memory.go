package user

import (
	"context"
	"sync"
	"time"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[string]*model.User)}
}

func (r *MemoryRepo) FindOrCreate(ctx context.Context, publicKey string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[publicKey]; ok {
		cpy := *u
		return &cpy, nil
	}
	u := &model.User{
		ID:        uuid.NewString(),
		PublicKey: publicKey,
		CreatedAt: time.Now().UTC(),
	}
	r.users[publicKey] = u
	cpy := *u
	return &cpy, nil
}

func (r *MemoryRepo) GetByPublicKey(ctx context.Context, publicKey string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[publicKey]
	if !ok {
		return nil, nil
	}
	cpy := *u
	return &cpy, nil
}
