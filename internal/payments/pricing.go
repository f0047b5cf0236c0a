package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// DefaultTermMonths is the length of one paid listing term.
const DefaultTermMonths = 6

var tierPrices = map[enums.GemTier]decimal.Decimal{
	enums.GemTierStandard: decimal.NewFromInt(1500),
	enums.GemTierFeatured: decimal.NewFromInt(4500),
}

// Price returns the KES amount charged for tier and purpose. An upgrade is
// only sold as featured and costs the difference over standard.
func Price(tier enums.GemTier, purpose enums.PaymentPurpose) (decimal.Decimal, error) {
	base, ok := tierPrices[tier]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for tier %q", tier)
	}
	switch purpose {
	case enums.PaymentPurposeNewListing, enums.PaymentPurposeRenewal:
		return base, nil
	case enums.PaymentPurposeUpgrade:
		if tier != enums.GemTierFeatured {
			return decimal.Zero, fmt.Errorf("upgrade is only available to the featured tier")
		}
		return base.Sub(tierPrices[enums.GemTierStandard]), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown payment purpose %q", purpose)
	}
}

// TermWindow computes the term a payment buys. New listings and upgrades
// start now; an upgrade inside an active term keeps that term's end.
// Renewals extend from the current end while it is still in the future.
func TermWindow(purpose enums.PaymentPurpose, gem *models.Gem, now time.Time, months int) (time.Time, time.Time) {
	if months <= 0 {
		months = DefaultTermMonths
	}
	now = now.UTC()
	active := gem != nil && gem.TermEndAt != nil && gem.TermEndAt.After(now)

	switch purpose {
	case enums.PaymentPurposeUpgrade:
		if active {
			return now, gem.TermEndAt.UTC()
		}
		return now, now.AddDate(0, months, 0)
	case enums.PaymentPurposeRenewal:
		start := now
		if active {
			start = gem.TermEndAt.UTC()
		}
		return start, start.AddDate(0, months, 0)
	default:
		return now, now.AddDate(0, months, 0)
	}
}
