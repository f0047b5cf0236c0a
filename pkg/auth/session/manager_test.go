package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string { return "session:" + accessID }

var sessionCfg = config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60}

func newManager(t *testing.T, store *memoryStore) *Manager {
	t.Helper()
	m, err := NewManager(store, sessionCfg)
	require.NoError(t, err)
	return m
}

func TestNewManagerValidatesTTLs(t *testing.T) {
	store := newMemoryStore()
	_, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15})
	assert.Error(t, err)
	_, err = NewManager(store, config.JWTConfig{ExpirationMinutes: 60, RefreshTokenTTLMinutes: 60})
	assert.Error(t, err)
	_, err = NewManager(nil, sessionCfg)
	assert.Error(t, err)
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	store := newMemoryStore()
	m := newManager(t, store)
	userID := uuid.New()

	token, err := m.Generate(context.Background(), "jti-1", userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	stored := store.data["session:jti-1"]
	assert.False(t, strings.Contains(stored, token))
	assert.True(t, strings.HasPrefix(stored, userID.String()+"."))
	assert.Equal(t, time.Hour, store.ttls["session:jti-1"])
}

func TestRotateIsSingleUse(t *testing.T) {
	store := newMemoryStore()
	m := newManager(t, store)
	ctx := context.Background()
	userID := uuid.New()

	token, err := m.Generate(ctx, "jti-1", userID)
	require.NoError(t, err)

	_, err = m.Rotate(ctx, "jti-1", "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	rotation, err := m.Rotate(ctx, "jti-1", token)
	require.NoError(t, err)
	assert.Equal(t, userID, rotation.UserID)
	assert.NotEqual(t, "jti-1", rotation.AccessID)
	assert.NotEqual(t, token, rotation.RefreshToken)

	live, err := m.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, live)
	live, err = m.HasSession(ctx, rotation.AccessID)
	require.NoError(t, err)
	assert.True(t, live)

	_, err = m.Rotate(ctx, "jti-1", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateRejectsCorruptEntries(t *testing.T) {
	store := newMemoryStore()
	m := newManager(t, store)
	store.data["session:jti-x"] = "garbage"

	_, err := m.Rotate(context.Background(), "jti-x", "anything")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = m.Rotate(context.Background(), "", "anything")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevokeEndsSession(t *testing.T) {
	store := newMemoryStore()
	m := newManager(t, store)
	ctx := context.Background()

	_, err := m.Generate(ctx, "jti-9", uuid.New())
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, "jti-9"))

	live, err := m.HasSession(ctx, "jti-9")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Error(t, m.Revoke(ctx, " "))
}

func TestGenerateRequiresIdentity(t *testing.T) {
	m := newManager(t, newMemoryStore())
	_, err := m.Generate(context.Background(), "", uuid.New())
	assert.Error(t, err)
	_, err = m.Generate(context.Background(), "jti", uuid.Nil)
	assert.Error(t, err)
}
