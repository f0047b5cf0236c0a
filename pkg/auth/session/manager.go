// Package session keeps refresh sessions in Redis, keyed by the jti of the
// access token they were issued alongside.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
)

// ErrInvalidRefreshToken covers unknown, revoked, already-rotated and
// mismatched refresh tokens alike.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

var errNoAccessID = errors.New("access id is required")

// Store is the slice of the Redis client sessions need.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware consults per request.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Rotation is the outcome of a successful refresh.
type Rotation struct {
	UserID       uuid.UUID
	AccessID     string
	RefreshToken string
}

// Manager issues, rotates and revokes refresh sessions.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager requires a refresh ttl strictly longer than the access token ttl
// so a session never lapses before the token it backs.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	refresh := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if refresh <= 0 {
		return nil, errors.New("refresh token ttl must be positive")
	}
	if refresh <= access {
		return nil, fmt.Errorf("refresh token ttl %s must exceed access token ttl %s", refresh, access)
	}
	return &Manager{store: store, ttl: refresh}, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for userID under accessID and returns the opaque
// refresh token. Only its digest is stored.
func (m *Manager) Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errNoAccessID
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	token := rand.Text()
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), encodeEntry(userID, token), m.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Rotate exchanges a refresh token for a new session. The old session is
// removed before the new one is written, so a token works at most once.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, refreshToken string) (Rotation, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(refreshToken) == "" {
		return Rotation{}, ErrInvalidRefreshToken
	}
	key := m.store.AccessSessionKey(oldAccessID)
	raw, err := m.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return Rotation{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Rotation{}, fmt.Errorf("load session: %w", err)
	}
	userID, digest, ok := decodeEntry(raw)
	if !ok || subtle.ConstantTimeCompare([]byte(digest), []byte(digestOf(refreshToken))) != 1 {
		return Rotation{}, ErrInvalidRefreshToken
	}
	if err := m.store.Del(ctx, key); err != nil {
		return Rotation{}, fmt.Errorf("drop session: %w", err)
	}

	next := Rotation{UserID: userID, AccessID: NewAccessID()}
	if next.RefreshToken, err = m.Generate(ctx, next.AccessID, userID); err != nil {
		return Rotation{}, err
	}
	return next, nil
}

// Revoke ends the session bound to accessID. Unknown ids are not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errNoAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

// HasSession reports whether accessID still has a live session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errNoAccessID
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, goredis.Nil):
		return false, nil
	default:
		return false, err
	}
}

// entries are "<user uuid>.<sha256 hex of refresh token>".
func encodeEntry(userID uuid.UUID, token string) string {
	return userID.String() + "." + digestOf(token)
}

func decodeEntry(raw string) (uuid.UUID, string, bool) {
	id, digest, found := strings.Cut(raw, ".")
	if !found || len(digest) != sha256.Size*2 {
		return uuid.Nil, "", false
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, "", false
	}
	return userID, digest, true
}

func digestOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
