package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// Payment is one attempt to pay for a listing term.
type Payment struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GemID             *uuid.UUID           `gorm:"column:gem_id;type:uuid"`
	UserID            uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	Amount            decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          enums.Currency       `gorm:"column:currency;not null;default:KES"`
	Purpose           enums.PaymentPurpose `gorm:"column:purpose;type:payment_purpose;not null"`
	Tier              enums.GemTier        `gorm:"column:tier;type:gem_tier;not null"`
	Status            enums.PaymentStatus  `gorm:"column:status;type:payment_status;not null;default:pending"`
	Provider          string               `gorm:"column:provider;not null;default:mpesa"`
	PhoneNumber       string               `gorm:"column:phone_number;not null"`
	CheckoutRequestID *string              `gorm:"column:checkout_request_id;uniqueIndex"`
	MerchantRequestID *string              `gorm:"column:merchant_request_id"`
	MpesaReceipt      *string              `gorm:"column:mpesa_receipt"`
	ResultCode        *int                 `gorm:"column:result_code"`
	ResultDesc        *string              `gorm:"column:result_desc"`
	TermStartAt       time.Time            `gorm:"column:term_start_at;not null"`
	TermEndAt         time.Time            `gorm:"column:term_end_at;not null"`
	CompletedAt       *time.Time           `gorm:"column:completed_at"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
