// Package directory answers whether an identity belongs to a registered user.
package directory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/redis/go-redis/v9"
)

var ErrEmptyIdentity = errors.New("identity is empty")

const usersKey = "users"

// Directory is the user directory consumed by the relay and the login flow.
type Directory interface {
	Register(ctx context.Context, id models.Identity) error
	Exists(ctx context.Context, id models.Identity) (bool, error)
}

type Memory struct {
	mu    sync.RWMutex
	users map[models.Identity]struct{}
}

func NewMemory(ids ...models.Identity) *Memory {
	m := &Memory{users: make(map[models.Identity]struct{}, len(ids))}
	for _, id := range ids {
		m.users[id] = struct{}{}
	}
	return m
}

func (m *Memory) Register(ctx context.Context, id models.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = struct{}{}
	return nil
}

func (m *Memory) Exists(ctx context.Context, id models.Identity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[id]
	return ok, nil
}

// List returns registered identities in sorted order.
func (m *Memory) List() []models.Identity {
	m.mu.RLock()
	result := make([]models.Identity, 0, len(m.users))
	for id := range m.users {
		result = append(result, id)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Redis keeps the directory in a Redis set so every relay instance sees the
// same users.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Register(ctx context.Context, id models.Identity) error {
	if id == "" {
		return ErrEmptyIdentity
	}
	return r.client.SAdd(ctx, usersKey, string(id)).Err()
}

func (r *Redis) Exists(ctx context.Context, id models.Identity) (bool, error) {
	return r.client.SIsMember(ctx, usersKey, string(id)).Result()
}
