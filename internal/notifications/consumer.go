package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/registry"
)

// ConsumerName scopes this consumer's idempotency claims.
const ConsumerName = "notifications"

type claimer interface {
	Claim(ctx context.Context, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, eventID uuid.UUID) error
}

type deliverer interface {
	Deliver(ctx context.Context, rows []models.Notification) error
}

// RecipientLookup resolves fan-out audiences.
type RecipientLookup interface {
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
	ListIDsByRoles(ctx context.Context, roles []enums.Role) ([]uuid.UUID, error)
}

// Consumer turns domain events into notification rows.
type Consumer struct {
	deliverer    deliverer
	recipients   RecipientLookup
	subscription *pubsub.Subscriber
	claims       claimer
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer. subscription may be nil in
// tests that drive process directly.
func NewConsumer(svc deliverer, recipients RecipientLookup, subscription *pubsub.Subscriber, claims claimer, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if recipients == nil {
		return nil, fmt.Errorf("recipient lookup required")
	}
	if claims == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		deliverer:    svc,
		recipients:   recipients,
		subscription: subscription,
		claims:       claims,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("notification subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})
	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unknown event type")
		return processResult{ack: true}
	}

	var envelope outbox.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	payload, err := registry.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	first, err := c.claims.Claim(ctx, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !first {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	rows, err := c.build(ctx, eventType, payload)
	if err == nil {
		err = c.deliverer.Deliver(ctx, rows)
	}
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.claims.Release(ctx, eventID)
		return processResult{nack: true}
	}
	c.logg.Info(c.logg.WithField(logCtx, "recipients", len(rows)), "notifications delivered")
	return processResult{ack: true}
}

// notificationData is stored in the jsonb data column.
type notificationData struct {
	GemID     *uuid.UUID `json:"gem_id,omitempty"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty"`
	RatingID  *uuid.UUID `json:"rating_id,omitempty"`
}

func (c *Consumer) build(ctx context.Context, eventType enums.OutboxEventType, payload any) ([]models.Notification, error) {
	switch p := payload.(type) {
	case *payloads.GemSubmittedEvent:
		admins, err := c.recipients.ListAdminIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list admins: %w", err)
		}
		location := strings.Trim(strings.Join([]string{p.City, p.Country}, ", "), ", ")
		return fanOut(admins, enums.NotificationTypeGemSubmitted,
			"New gem submitted",
			fmt.Sprintf("%s (%s) is waiting for review.", p.Name, location),
			notificationData{GemID: &p.GemID}), nil

	case *payloads.GemStatusChangedEvent:
		switch p.Status {
		case enums.GemStatusApproved:
			return single(p.OwnerID, enums.NotificationTypeGemApproved,
				"Your gem is live",
				fmt.Sprintf("%s was approved and is now visible to travellers.", p.Name),
				notificationData{GemID: &p.GemID}), nil
		case enums.GemStatusRejected:
			msg := fmt.Sprintf("%s was not approved.", p.Name)
			if p.RejectionReason != "" {
				msg = fmt.Sprintf("%s was not approved. Reason: %s", p.Name, p.RejectionReason)
			}
			return single(p.OwnerID, enums.NotificationTypeGemRejected,
				"Your gem needs changes", msg, notificationData{GemID: &p.GemID}), nil
		}
		return nil, nil

	case *payloads.GemExpiringSoonEvent:
		return single(p.OwnerID, enums.NotificationTypeGemExpiringSoon,
			"Listing expiring soon",
			fmt.Sprintf("%s expires in %d days on %s. Renew to stay visible.", p.Name, p.DaysRemaining, p.TermEndAt.Format("2 Jan 2006")),
			notificationData{GemID: &p.GemID}), nil

	case *payloads.GemExpiredEvent:
		return single(p.OwnerID, enums.NotificationTypeGemExpired,
			"Listing expired",
			fmt.Sprintf("%s is no longer visible. Renew the listing to publish it again.", p.Name),
			notificationData{GemID: &p.GemID}), nil

	case *payloads.PaymentStatusEvent:
		data := notificationData{GemID: p.GemID, PaymentID: &p.PaymentID}
		if eventType == enums.EventPaymentCompleted {
			msg := fmt.Sprintf("We received %s %s.", p.Currency, p.Amount.StringFixed(2))
			if p.Receipt != "" {
				msg = fmt.Sprintf("We received %s %s (receipt %s).", p.Currency, p.Amount.StringFixed(2), p.Receipt)
			}
			if p.GemName != "" {
				msg += fmt.Sprintf(" %s is paid through %s.", p.GemName, formatDate(p))
			}
			return single(p.UserID, enums.NotificationTypePaymentCompleted, "Payment received", msg, data), nil
		}
		msg := "Your M-Pesa payment did not go through."
		if p.Reason != "" {
			msg = fmt.Sprintf("Your M-Pesa payment did not go through: %s", p.Reason)
		}
		return single(p.UserID, enums.NotificationTypePaymentFailed, "Payment failed", msg, data), nil

	case *payloads.RatingCreatedEvent:
		if p.AuthorID == p.OwnerID {
			return nil, nil
		}
		return single(p.OwnerID, enums.NotificationTypeNewReview,
			"New review",
			fmt.Sprintf("%s received a %d-star review.", p.GemName, p.Score),
			notificationData{GemID: &p.GemID, RatingID: &p.RatingID}), nil

	case *payloads.FavoriteCreatedEvent:
		if p.UserID == p.OwnerID {
			return nil, nil
		}
		return single(p.OwnerID, enums.NotificationTypeNewFavorite,
			"Someone saved your gem",
			fmt.Sprintf("%s was added to a traveller's favorites.", p.GemName),
			notificationData{GemID: &p.GemID}), nil

	case *payloads.SystemAnnouncementEvent:
		ids, err := c.recipients.ListIDsByRoles(ctx, p.Roles)
		if err != nil {
			return nil, fmt.Errorf("list announcement recipients: %w", err)
		}
		return fanOut(ids, enums.NotificationTypeSystem, p.Title, p.Message, notificationData{}), nil
	}
	return nil, nil
}

func formatDate(p *payloads.PaymentStatusEvent) string {
	if p.TermEndAt == nil {
		return "the end of the term"
	}
	return p.TermEndAt.Format("2 Jan 2006")
}

func single(userID uuid.UUID, typ enums.NotificationType, title, message string, data notificationData) []models.Notification {
	if userID == uuid.Nil {
		return nil
	}
	return fanOut([]uuid.UUID{userID}, typ, title, message, data)
}

func fanOut(userIDs []uuid.UUID, typ enums.NotificationType, title, message string, data notificationData) []models.Notification {
	raw, _ := json.Marshal(data)
	rows := make([]models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.Notification{
			UserID:  id,
			Type:    typ,
			Title:   title,
			Message: message,
			Data:    raw,
		})
	}
	return rows
}
