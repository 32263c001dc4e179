// Package cache keeps a client's conversation history and contacts in redis.
// It never looks inside the text fields: callers seal them before storing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"e2e_relay/internal/model"
)

var (
	ErrDuplicate = errors.New("message already cached")
	ErrLocked    = errors.New("cache is locked")
)

// Backend is the subset of redis the cache needs.
type Backend interface {
	SetNX(ctx context.Context, key string, value any) (bool, error)
	MGet(ctx context.Context, keys ...string) ([]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string) ([]string, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
}

type Cache struct {
	owner string

	mu      sync.RWMutex
	backend Backend
}

// New opens the cache of owner, an identity string.
func New(backend Backend, owner string) *Cache {
	return &Cache{owner: owner, backend: backend}
}

// Lock detaches the backend. Every later call fails with ErrLocked.
func (c *Cache) Lock() {
	c.mu.Lock()
	c.backend = nil
	c.mu.Unlock()
}

func (c *Cache) get() (Backend, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.backend == nil {
		return nil, ErrLocked
	}
	return c.backend, nil
}

func (c *Cache) messageKey(id string) string {
	return fmt.Sprintf("relay:%s:msg:%s", c.owner, id)
}

func (c *Cache) conversationKey(counterpart string) string {
	return fmt.Sprintf("relay:%s:conv:%s", c.owner, counterpart)
}

func (c *Cache) contactsKey() string {
	return fmt.Sprintf("relay:%s:contacts", c.owner)
}

// AddMessage stores m and indexes it under its counterpart by timestamp.
// A second message with the same id fails with ErrDuplicate.
func (c *Cache) AddMessage(ctx context.Context, m *model.CachedMessage) error {
	b, err := c.get()
	if err != nil {
		return err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	ok, err := b.SetNX(ctx, c.messageKey(m.ID), data)
	if err != nil {
		return fmt.Errorf("store message %s: %w", m.ID, err)
	}
	if !ok {
		return ErrDuplicate
	}

	if err := b.ZAdd(ctx, c.conversationKey(m.Counterpart(c.owner)), float64(m.Timestamp), m.ID); err != nil {
		return fmt.Errorf("index message %s: %w", m.ID, err)
	}
	return nil
}

// Messages returns the conversation with counterpart, oldest first.
func (c *Cache) Messages(ctx context.Context, counterpart string) ([]*model.CachedMessage, error) {
	b, err := c.get()
	if err != nil {
		return nil, err
	}

	ids, err := b.ZRange(ctx, c.conversationKey(counterpart))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.messageKey(id)
	}
	vals, err := b.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	out := make([]*model.CachedMessage, 0, len(vals))
	for i, v := range vals {
		if v == "" {
			continue
		}
		var m model.CachedMessage
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", ids[i], err)
		}
		out = append(out, &m)
	}
	return out, nil
}

// ClearConversation drops every cached message exchanged with counterpart.
// Contacts are kept.
func (c *Cache) ClearConversation(ctx context.Context, counterpart string) (int, error) {
	b, err := c.get()
	if err != nil {
		return 0, err
	}

	conv := c.conversationKey(counterpart)
	ids, err := b.ZRange(ctx, conv)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, c.messageKey(id))
	}
	keys = append(keys, conv)
	if err := b.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("clear conversation: %w", err)
	}
	return len(ids), nil
}

// AddContact inserts or renames a contact.
func (c *Cache) AddContact(ctx context.Context, contact *model.Contact) error {
	b, err := c.get()
	if err != nil {
		return err
	}
	return b.HSet(ctx, c.contactsKey(), contact.ID, contact.Username)
}

func (c *Cache) Contacts(ctx context.Context) ([]*model.Contact, error) {
	b, err := c.get()
	if err != nil {
		return nil, err
	}

	all, err := b.HGetAll(ctx, c.contactsKey())
	if err != nil {
		return nil, err
	}

	out := make([]*model.Contact, 0, len(all))
	for id, name := range all {
		out = append(out, &model.Contact{ID: id, Username: name})
	}
	return out, nil
}
