package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// InitiateInput is the raw request body; fields are parsed by the service so
// the exact validation messages stay in one place.
type InitiateInput struct {
	GemID       string `json:"gemId"`
	Tier        string `json:"tier"`
	Type        string `json:"type"`
	PhoneNumber string `json:"phoneNumber"`
}

type InitiateResult struct {
	PaymentID         uuid.UUID       `json:"paymentId"`
	CheckoutRequestID string          `json:"checkoutRequestId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          enums.Currency  `json:"currency"`
	CustomerMessage   string          `json:"customerMessage"`
}

// PaymentDTO is the API shape of a payment.
type PaymentDTO struct {
	ID                uuid.UUID            `json:"id"`
	GemID             *uuid.UUID           `json:"gemId,omitempty"`
	UserID            uuid.UUID            `json:"userId"`
	Amount            decimal.Decimal      `json:"amount"`
	Currency          enums.Currency       `json:"currency"`
	Purpose           enums.PaymentPurpose `json:"purpose"`
	Tier              enums.GemTier        `json:"tier"`
	Status            enums.PaymentStatus  `json:"status"`
	Provider          string               `json:"provider"`
	PhoneNumber       string               `json:"phoneNumber"`
	CheckoutRequestID *string              `json:"checkoutRequestId,omitempty"`
	MpesaReceipt      *string              `json:"mpesaReceipt,omitempty"`
	ResultCode        *int                 `json:"resultCode,omitempty"`
	ResultDesc        *string              `json:"resultDesc,omitempty"`
	TermStartAt       time.Time            `json:"termStartAt"`
	TermEndAt         time.Time            `json:"termEndAt"`
	CompletedAt       *time.Time           `json:"completedAt,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

func FromModel(p *models.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:                p.ID,
		GemID:             p.GemID,
		UserID:            p.UserID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Purpose:           p.Purpose,
		Tier:              p.Tier,
		Status:            p.Status,
		Provider:          p.Provider,
		PhoneNumber:       p.PhoneNumber,
		CheckoutRequestID: p.CheckoutRequestID,
		MpesaReceipt:      p.MpesaReceipt,
		ResultCode:        p.ResultCode,
		ResultDesc:        p.ResultDesc,
		TermStartAt:       p.TermStartAt,
		TermEndAt:         p.TermEndAt,
		CompletedAt:       p.CompletedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

// ListFilters narrow the admin payment listing.
type ListFilters struct {
	Status  *enums.PaymentStatus
	Purpose *enums.PaymentPurpose
	Tier    *enums.GemTier
	UserID  *uuid.UUID
	GemID   *uuid.UUID
	Page    int
	Limit   int
}

// Stats summarises payments for the admin dashboard.
type Stats struct {
	CountByStatus    map[enums.PaymentStatus]int64            `json:"countByStatus"`
	CompletedRevenue decimal.Decimal                          `json:"completedRevenue"`
	RevenueByTier    map[enums.GemTier]decimal.Decimal        `json:"revenueByTier"`
	RevenueByPurpose map[enums.PaymentPurpose]decimal.Decimal `json:"revenueByPurpose"`
	CountLast30Days  int64                                    `json:"countLast30Days"`
	Currency         enums.Currency                           `json:"currency"`
}

// ReconcileSummary reports one cron pass over pending payments.
type ReconcileSummary struct {
	Checked   int
	Completed int
	Failed    int
	TimedOut  int
}
