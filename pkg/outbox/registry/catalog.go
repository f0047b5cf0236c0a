// Package registry is the catalog of domain events: which aggregate each one
// belongs to, which topic carries it and how its payload decodes.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
)

// PayloadVersion is the only envelope version producers emit today.
const PayloadVersion = 1

// ErrPermanent marks failures that retrying cannot fix. The relay
// dead-letters them on first sight.
var ErrPermanent = errors.New("permanent")

// Permanent tags err with ErrPermanent.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err carries ErrPermanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

type entry struct {
	aggregate enums.OutboxAggregateType
	payload   func() any
}

var catalog = map[enums.OutboxEventType]entry{
	enums.EventGemSubmitted:       {enums.AggregateGem, func() any { return new(payloads.GemSubmittedEvent) }},
	enums.EventGemStatusChanged:   {enums.AggregateGem, func() any { return new(payloads.GemStatusChangedEvent) }},
	enums.EventGemExpiringSoon:    {enums.AggregateGem, func() any { return new(payloads.GemExpiringSoonEvent) }},
	enums.EventGemExpired:         {enums.AggregateGem, func() any { return new(payloads.GemExpiredEvent) }},
	enums.EventPaymentCompleted:   {enums.AggregatePayment, func() any { return new(payloads.PaymentStatusEvent) }},
	enums.EventPaymentFailed:      {enums.AggregatePayment, func() any { return new(payloads.PaymentStatusEvent) }},
	enums.EventRatingCreated:      {enums.AggregateRating, func() any { return new(payloads.RatingCreatedEvent) }},
	enums.EventFavoriteCreated:    {enums.AggregateGem, func() any { return new(payloads.FavoriteCreatedEvent) }},
	enums.EventSystemAnnouncement: {enums.AggregateUser, func() any { return new(payloads.SystemAnnouncementEvent) }},
}

// Decode turns an envelope's data into the typed payload for eventType, for
// example *payloads.RatingCreatedEvent.
func Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	s, ok := catalog[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if version != PayloadVersion {
		return nil, fmt.Errorf("%s: unsupported payload version %d", eventType, version)
	}
	target := s.payload()
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return target, nil
}

// Route is an outbox row ready to publish.
type Route struct {
	Topic    string
	Envelope outbox.Envelope
	Payload  any
}

// Router validates outbox rows against the catalog. Every domain event
// currently shares one topic.
type Router struct {
	topic string
}

func NewRouter(cfg config.PubSubConfig) (*Router, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	return &Router{topic: cfg.DomainTopic}, nil
}

// Resolve checks a stored row end to end. Every error it returns is
// permanent: a malformed row never becomes valid by waiting.
func (r *Router) Resolve(row models.OutboxEvent) (*Route, error) {
	s, ok := catalog[row.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unknown event type %q", row.EventType))
	case s.aggregate != row.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s aggregates, row says %s", row.EventType, s.aggregate, row.AggregateType))
	case row.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("aggregate id missing"))
	}

	var envelope outbox.Envelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}
	payload, err := Decode(row.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, Permanent(err)
	}
	return &Route{Topic: r.topic, Envelope: envelope, Payload: payload}, nil
}
