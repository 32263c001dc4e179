package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type zmember struct {
	score  float64
	member string
}

// MemoryBackend is a process-local Backend for clients run without redis.
// Sorted sets order by score, then member, like redis does.
type MemoryBackend struct {
	mu     sync.Mutex
	kv     map[string]string
	zsets  map[string][]zmember
	hashes map[string]map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		kv:     make(map[string]string),
		zsets:  make(map[string][]zmember),
		hashes: make(map[string]map[string]string),
	}
}

func (m *MemoryBackend) SetNX(ctx context.Context, key string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case []byte:
		m.kv[key] = string(v)
	default:
		m.kv[key] = fmt.Sprint(v)
	}
	return true, nil
}

func (m *MemoryBackend) MGet(ctx context.Context, keys ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m.kv[k]
	}
	return out, nil
}

func (m *MemoryBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.zsets[key]
	for i := range set {
		if set[i].member == member {
			set[i].score = score
			return nil
		}
	}
	m.zsets[key] = append(set, zmember{score: score, member: member})
	return nil
}

func (m *MemoryBackend) ZRange(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	set := append([]zmember(nil), m.zsets[key]...)
	m.mu.Unlock()

	sort.Slice(set, func(i, j int) bool {
		if set[i].score != set[j].score {
			return set[i].score < set[j].score
		}
		return set[i].member < set[j].member
	})
	out := make([]string, len(set))
	for i, z := range set {
		out[i] = z.member
	}
	return out, nil
}

func (m *MemoryBackend) HSet(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *MemoryBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
		delete(m.zsets, k)
		delete(m.hashes, k)
	}
	return nil
}
