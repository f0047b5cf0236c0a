package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
)

type listingBody struct {
	Name     string            `json:"name" validate:"required,max=10"`
	Category enums.GemCategory `json:"category" validate:"required,enum"`
	Tier     *enums.GemTier    `json:"tier,omitempty" validate:"omitempty,enum"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/gems", strings.NewReader(body))
}

func TestDecodeJSONBodyAcceptsValidBody(t *testing.T) {
	var dest listingBody
	err := DecodeJSONBody(jsonRequest(`{"name":"Kazuri","category":"arts_crafts","tier":"featured"}`), &dest)
	require.NoError(t, err)
	assert.Equal(t, enums.GemCategory("arts_crafts"), dest.Category)
	require.NotNil(t, dest.Tier)
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	var dest listingBody
	err := DecodeJSONBody(jsonRequest(`{"name":"A very long listing name","category":"spaceport"}`), &dest)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be at most 10", details["name"])
	assert.Equal(t, "is not a recognised value", details["category"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"unknown field":  `{"name":"Kazuri","category":"arts_crafts","role":"admin"}`,
		"syntax":         `{"name":`,
		"empty":          ``,
		"two objects":    `{"name":"a","category":"arts_crafts"}{"name":"b"}`,
		"wrong type":     `{"name":5,"category":"arts_crafts"}`,
		"invalid option": `{"name":"Kazuri","category":"arts_crafts","tier":"gold"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var dest listingBody
			assert.True(t, pkgerrors.Is(DecodeJSONBody(jsonRequest(body), &dest), pkgerrors.CodeValidation))
		})
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/traffic?days=14&limit=abc&page=0", nil)

	days, err := ParseQueryInt(req, "days", 7, 1, 90)
	require.NoError(t, err)
	assert.Equal(t, 14, days)

	fallback, err := ParseQueryInt(req, "radius", 25, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 25, fallback)

	_, err = ParseQueryInt(req, "limit", 20, 1, 100)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = ParseQueryInt(req, "page", 1, 1, 1000)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Lake Bunyonyi", SanitizeString("  Lake \n  Bunyonyi ", 0))
	assert.Equal(t, "Café", SanitizeString("Café du Lac", 4))
	assert.Equal(t, "Nairobi", SanitizeString("Nairobi", 80))
	assert.Equal(t, "", SanitizeString("   ", 10))
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?unreadOnly=1&bad=maybe", nil)
	on, err := ParseQueryBool(req, "unreadOnly")
	require.NoError(t, err)
	assert.True(t, on)

	absent, err := ParseQueryBool(req, "missing")
	require.NoError(t, err)
	assert.False(t, absent)

	_, err = ParseQueryBool(req, "bad")
	assert.Error(t, err)
}
