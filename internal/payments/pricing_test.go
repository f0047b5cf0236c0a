package payments

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

func TestPriceTable(t *testing.T) {
	cases := []struct {
		tier    enums.GemTier
		purpose enums.PaymentPurpose
		want    int64
		wantErr bool
	}{
		{enums.GemTierStandard, enums.PaymentPurposeNewListing, 1500, false},
		{enums.GemTierFeatured, enums.PaymentPurposeNewListing, 4500, false},
		{enums.GemTierStandard, enums.PaymentPurposeRenewal, 1500, false},
		{enums.GemTierFeatured, enums.PaymentPurposeRenewal, 4500, false},
		{enums.GemTierFeatured, enums.PaymentPurposeUpgrade, 3000, false},
		{enums.GemTierStandard, enums.PaymentPurposeUpgrade, 0, true},
		{"gold", enums.PaymentPurposeNewListing, 0, true},
	}
	for _, tc := range cases {
		got, err := Price(tc.tier, tc.purpose)
		if tc.wantErr {
			require.Error(t, err, "%s/%s", tc.tier, tc.purpose)
			continue
		}
		require.NoError(t, err)
		require.True(t, got.Equal(decimal.NewFromInt(tc.want)), "%s/%s = %s", tc.tier, tc.purpose, got)
	}
}

func TestTermWindow(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	activeEnd := now.AddDate(0, 2, 0)
	pastEnd := now.AddDate(0, -1, 0)
	active := &models.Gem{TermEndAt: &activeEnd}
	lapsed := &models.Gem{TermEndAt: &pastEnd}

	start, end := TermWindow(enums.PaymentPurposeNewListing, nil, now, 6)
	require.Equal(t, now, start)
	require.Equal(t, now.AddDate(0, 6, 0), end)

	start, end = TermWindow(enums.PaymentPurposeRenewal, active, now, 6)
	require.Equal(t, activeEnd, start)
	require.Equal(t, activeEnd.AddDate(0, 6, 0), end)

	start, end = TermWindow(enums.PaymentPurposeRenewal, lapsed, now, 6)
	require.Equal(t, now, start)
	require.Equal(t, now.AddDate(0, 6, 0), end)

	start, end = TermWindow(enums.PaymentPurposeUpgrade, active, now, 6)
	require.Equal(t, now, start)
	require.Equal(t, activeEnd, end)

	_, end = TermWindow(enums.PaymentPurposeUpgrade, lapsed, now, 0)
	require.Equal(t, now.AddDate(0, DefaultTermMonths, 0), end)
}
