package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysetTokenRoundTrip(t *testing.T) {
	in := Keyset{CreatedAt: time.Date(2026, 2, 3, 4, 5, 6, 7, time.FixedZone("EAT", 3*3600)), ID: uuid.New()}
	out, err := DecodeKeyset(in.Encode())
	require.NoError(t, err)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeKeyset(t *testing.T) {
	first, err := DecodeKeyset("")
	require.NoError(t, err)
	assert.Nil(t, first)

	for _, token := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-01-01T00:00:00Z"}`)),
	} {
		_, err := DecodeKeyset(token)
		assert.Error(t, err, token)
	}
}

func TestCutReturnsNextPosition(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []Keyset{
		{CreatedAt: base.Add(3 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(2 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(time.Minute), ID: uuid.New()},
	}
	self := func(k Keyset) Keyset { return k }

	page, next := Cut(rows, 2, self)
	assert.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, rows[1], *next)

	page, next = Cut(rows, 3, self)
	assert.Len(t, page, 3)
	assert.Nil(t, next)
}

func TestFeedLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, FeedLimit(0))
	assert.Equal(t, 7, FeedLimit(7))
	assert.Equal(t, MaxFeedLimit, FeedLimit(1000))
}

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, limit int
		want        Page
		offset      int
	}{
		{0, 0, Page{1, DefaultLimit}, 0},
		{3, 10, Page{3, 10}, 20},
		{2, 500, Page{2, MaxOffsetLimit}, MaxOffsetLimit},
	}
	for _, tc := range cases {
		got := NormalizePage(tc.page, tc.limit)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.offset, got.Offset())
	}
}

func TestNewOffsetResultNeverNil(t *testing.T) {
	res := NewOffsetResult[string](nil, NormalizePage(1, 10), 0)
	assert.NotNil(t, res.Items)
	assert.Equal(t, 10, res.Limit)
}
