package enums

import "slices"

// Currency is what listing fees are charged in. M-Pesa only settles KES.
type Currency string

const CurrencyKES Currency = "KES"

func (c Currency) IsValid() bool { return c == CurrencyKES }

// PaymentPurpose says what a payment buys.
type PaymentPurpose string

const (
	PaymentPurposeNewListing PaymentPurpose = "new_listing"
	PaymentPurposeRenewal    PaymentPurpose = "renewal"
	PaymentPurposeUpgrade    PaymentPurpose = "upgrade"
)

var paymentPurposes = []PaymentPurpose{PaymentPurposeNewListing, PaymentPurposeRenewal, PaymentPurposeUpgrade}

func (p PaymentPurpose) String() string { return string(p) }
func (p PaymentPurpose) IsValid() bool  { return slices.Contains(paymentPurposes, p) }

func ParsePaymentPurpose(raw string) (PaymentPurpose, error) {
	return parse("payment purpose", paymentPurposes, raw)
}

// PaymentStatus tracks one charge. Pending is the only state that moves.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded,
}

func (s PaymentStatus) String() string   { return string(s) }
func (s PaymentStatus) IsValid() bool    { return slices.Contains(paymentStatuses, s) }
func (s PaymentStatus) IsTerminal() bool { return s != PaymentStatusPending }

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	return parse("payment status", paymentStatuses, raw)
}
