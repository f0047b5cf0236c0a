package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hiddengems/hiddengems-backend/pkg/enums"
)

// GemSubmittedEvent is emitted when a listing enters moderation.
type GemSubmittedEvent struct {
	GemID   uuid.UUID `json:"gemId"`
	OwnerID uuid.UUID `json:"ownerId"`
	Name    string    `json:"name"`
	Slug    string    `json:"slug"`
	City    string    `json:"city"`
	Country string    `json:"country"`
}

// GemStatusChangedEvent is emitted when an admin moves a listing between states.
type GemStatusChangedEvent struct {
	GemID           uuid.UUID       `json:"gemId"`
	OwnerID         uuid.UUID       `json:"ownerId"`
	Name            string          `json:"name"`
	Slug            string          `json:"slug"`
	PreviousStatus  enums.GemStatus `json:"previousStatus"`
	Status          enums.GemStatus `json:"status"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
}

// GemExpiringSoonEvent warns the owner before the paid term ends.
type GemExpiringSoonEvent struct {
	GemID         uuid.UUID `json:"gemId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	Name          string    `json:"name"`
	TermEndAt     time.Time `json:"termEndAt"`
	DaysRemaining int       `json:"daysRemaining"`
}

// GemExpiredEvent is emitted when cron hides a listing whose term elapsed.
type GemExpiredEvent struct {
	GemID     uuid.UUID `json:"gemId"`
	OwnerID   uuid.UUID `json:"ownerId"`
	Name      string    `json:"name"`
	TermEndAt time.Time `json:"termEndAt"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// PaymentStatusEvent covers both payment_completed and payment_failed.
type PaymentStatusEvent struct {
	PaymentID uuid.UUID            `json:"paymentId"`
	GemID     *uuid.UUID           `json:"gemId,omitempty"`
	GemName   string               `json:"gemName,omitempty"`
	UserID    uuid.UUID            `json:"userId"`
	Status    enums.PaymentStatus  `json:"status"`
	Purpose   enums.PaymentPurpose `json:"purpose"`
	Tier      enums.GemTier        `json:"tier"`
	Amount    decimal.Decimal      `json:"amount"`
	Currency  enums.Currency       `json:"currency"`
	Receipt   string               `json:"receipt,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Source    string               `json:"source"`
	TermEndAt *time.Time           `json:"termEndAt,omitempty"`
}

// RatingCreatedEvent tells the owner their listing was reviewed.
type RatingCreatedEvent struct {
	RatingID uuid.UUID `json:"ratingId"`
	GemID    uuid.UUID `json:"gemId"`
	GemName  string    `json:"gemName"`
	OwnerID  uuid.UUID `json:"ownerId"`
	AuthorID uuid.UUID `json:"authorId"`
	Score    int       `json:"score"`
}

// FavoriteCreatedEvent tells the owner someone saved their listing.
type FavoriteCreatedEvent struct {
	FavoriteID uuid.UUID `json:"favoriteId"`
	GemID      uuid.UUID `json:"gemId"`
	GemName    string    `json:"gemName"`
	OwnerID    uuid.UUID `json:"ownerId"`
	UserID     uuid.UUID `json:"userId"`
}

// SystemAnnouncementEvent is an admin broadcast. An empty Roles list targets everyone.
type SystemAnnouncementEvent struct {
	Title   string       `json:"title"`
	Message string       `json:"message"`
	Roles   []enums.Role `json:"roles,omitempty"`
}
