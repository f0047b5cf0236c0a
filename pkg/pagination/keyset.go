package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxFeedLimit caps a keyset page.
const MaxFeedLimit = 100

var errEmptyKeyset = errors.New("cursor is missing its position")

// Keyset marks the last row of a feed page ordered newest first by
// (created_at, id).
type Keyset struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Encode renders k as an opaque URL-safe token.
func (k Keyset) Encode() string {
	raw, _ := json.Marshal(Keyset{CreatedAt: k.CreatedAt.UTC(), ID: k.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeKeyset parses a token produced by Encode. An empty token means the
// first page and yields nil.
func DecodeKeyset(token string) (*Keyset, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("cursor encoding: %w", err)
	}
	var k Keyset
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("cursor body: %w", err)
	}
	if k.CreatedAt.IsZero() || k.ID == uuid.Nil {
		return nil, errEmptyKeyset
	}
	return &k, nil
}

// After restricts query to rows strictly older than k and orders it newest
// first. A nil k only applies the ordering.
func (k *Keyset) After(query *gorm.DB) *gorm.DB {
	if k != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", k.CreatedAt, k.CreatedAt, k.ID)
	}
	return query.Order("created_at DESC, id DESC")
}

// FeedLimit clamps a requested feed size.
func FeedLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxFeedLimit)
}

// Cut trims rows fetched with size+1 down to size and returns the keyset of
// the next page, or nil when rows was the last page.
func Cut[T any](rows []T, size int, position func(T) Keyset) ([]T, *Keyset) {
	if len(rows) <= size {
		return rows, nil
	}
	rows = rows[:size]
	next := position(rows[size-1])
	return rows, &next
}
