package enums

import "slices"

// OutboxAggregateType is the kind of entity an event is about.
type OutboxAggregateType string

const (
	AggregateGem     OutboxAggregateType = "gem"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateRating  OutboxAggregateType = "rating"
	AggregateUser    OutboxAggregateType = "user"
)

var aggregateTypes = []OutboxAggregateType{AggregateGem, AggregatePayment, AggregateRating, AggregateUser}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func ParseOutboxAggregateType(raw string) (OutboxAggregateType, error) {
	return parse("aggregate type", aggregateTypes, raw)
}

// OutboxEventType names a domain event.
type OutboxEventType string

const (
	EventGemSubmitted       OutboxEventType = "gem_submitted"
	EventGemStatusChanged   OutboxEventType = "gem_status_changed"
	EventGemExpiringSoon    OutboxEventType = "gem_expiring_soon"
	EventGemExpired         OutboxEventType = "gem_expired"
	EventPaymentCompleted   OutboxEventType = "payment_completed"
	EventPaymentFailed      OutboxEventType = "payment_failed"
	EventRatingCreated      OutboxEventType = "rating_created"
	EventFavoriteCreated    OutboxEventType = "favorite_created"
	EventSystemAnnouncement OutboxEventType = "system_announcement"
)

var eventTypes = []OutboxEventType{
	EventGemSubmitted, EventGemStatusChanged, EventGemExpiringSoon, EventGemExpired,
	EventPaymentCompleted, EventPaymentFailed,
	EventRatingCreated, EventFavoriteCreated,
	EventSystemAnnouncement,
}

// OutboxEventTypes lists every event type in declaration order.
func OutboxEventTypes() []OutboxEventType { return slices.Clone(eventTypes) }

func (e OutboxEventType) IsValid() bool { return slices.Contains(eventTypes, e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return parse("event type", eventTypes, raw)
}

// DeadLetterReason records why the relay gave up on a row.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts DeadLetterReason = "max_attempts"
	DeadLetterPermanent   DeadLetterReason = "permanent"
)
