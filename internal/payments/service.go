package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/internal/gems"
	mpesawebhook "github.com/hiddengems/hiddengems-backend/internal/webhooks/mpesa"
	"github.com/hiddengems/hiddengems-backend/pkg/db/models"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/mpesa"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/payloads"
	"github.com/hiddengems/hiddengems-backend/pkg/pagination"
	"github.com/hiddengems/hiddengems-backend/pkg/visibility"
)

const (
	providerMpesa = "mpesa"

	SourceCallback  = "callback"
	SourcePoll      = "poll"
	SourceReconcile = "reconcile"
	SourceTimeout   = "timeout"

	msgCancelledByUser = "Payment cancelled by user"
	msgTimedOut        = "Payment timed out"

	statsWindow = 30 * 24 * time.Hour
)

// Service orchestrates M-Pesa listing payments.
type Service interface {
	Initiate(ctx context.Context, viewer visibility.Viewer, input InitiateInput) (*InitiateResult, error)
	HandleCallback(ctx context.Context, raw []byte) mpesa.Ack
	PollStatus(ctx context.Context, viewer visibility.Viewer, paymentID uuid.UUID) (*PaymentDTO, error)
	ListMine(ctx context.Context, viewer visibility.Viewer, page, limit int) (pagination.OffsetResult[PaymentDTO], error)
	List(ctx context.Context, filters ListFilters) (pagination.OffsetResult[PaymentDTO], error)
	Stats(ctx context.Context) (*Stats, error)
	ReconcilePending(ctx context.Context, grace, timeout time.Duration, limit int) (ReconcileSummary, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type callbackGuard interface {
	CheckAndMark(ctx context.Context, checkoutRequestID string) (bool, error)
	Delete(ctx context.Context, checkoutRequestID string) error
}

// ServiceParams bundles orchestrator dependencies.
type ServiceParams struct {
	Repo       *Repository
	GemRepo    *gems.Repository
	DB         txRunner
	Gateway    mpesa.Gateway
	Outbox     outbox.Emitter
	Guard      *mpesawebhook.IdempotencyGuard
	Metrics    *metrics.PaymentMetrics
	TermMonths int
	Logger     *logger.Logger
}

type service struct {
	repo       *Repository
	gems       *gems.Repository
	db         txRunner
	gateway    mpesa.Gateway
	outbox     outbox.Emitter
	guard      callbackGuard
	metrics    *metrics.PaymentMetrics
	termMonths int
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.GemRepo == nil {
		return nil, fmt.Errorf("gem repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("mpesa gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	s := &service{
		repo:       params.Repo,
		gems:       params.GemRepo,
		db:         params.DB,
		gateway:    params.Gateway,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		termMonths: params.TermMonths,
		logg:       params.Logger,
		now:        time.Now,
	}
	if params.Guard != nil {
		s.guard = params.Guard
	}
	return s, nil
}

func (s *service) Initiate(ctx context.Context, viewer visibility.Viewer, input InitiateInput) (*InitiateResult, error) {
	if viewer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	gemRaw := strings.TrimSpace(input.GemID)
	tierRaw := strings.TrimSpace(input.Tier)
	typeRaw := strings.TrimSpace(input.Type)
	if gemRaw == "" || tierRaw == "" || typeRaw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gemId, tier and type are required")
	}
	if strings.TrimSpace(input.PhoneNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Phone number is required")
	}
	gemID, err := uuid.Parse(gemRaw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid gemId")
	}
	tier, err := enums.ParseGemTier(tierRaw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid tier")
	}
	purpose, err := enums.ParsePaymentPurpose(typeRaw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid type")
	}
	phone, err := mpesa.NormalizePhone(input.PhoneNumber)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid phone number. Use a Safaricom number such as 0712345678")
	}
	amount, err := Price(tier, purpose)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	gem, err := s.gems.FindByID(ctx, gemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gem not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load gem")
	}
	if gem.OwnerID != viewer.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the gem owner can pay for its listing")
	}
	if purpose == enums.PaymentPurposeUpgrade && gem.Tier == enums.GemTierFeatured {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gem is already featured")
	}

	now := s.now().UTC()
	start, end := TermWindow(purpose, gem, now, s.termMonths)

	push, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		PhoneNumber:      phone,
		Amount:           amount,
		AccountReference: accountReference(gem),
		Description:      "Hidden Gems " + string(tier),
	})
	if err != nil {
		s.logError(ctx, "stk push failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "failed to initiate M-Pesa payment")
	}

	checkoutID := push.CheckoutRequestID
	merchantID := push.MerchantRequestID
	payment := &models.Payment{
		GemID:             &gem.ID,
		UserID:            viewer.ID,
		Amount:            amount,
		Currency:          enums.CurrencyKES,
		Purpose:           purpose,
		Tier:              tier,
		Status:            enums.PaymentStatusPending,
		Provider:          providerMpesa,
		PhoneNumber:       phone,
		CheckoutRequestID: &checkoutID,
		MerchantRequestID: &merchantID,
		TermStartAt:       start,
		TermEndAt:         end,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment")
	}
	s.metrics.IncInitiated(string(tier), string(purpose))

	if s.logg != nil {
		logCtx := s.logg.WithPaymentID(ctx, payment.ID.String())
		logCtx = s.logg.WithGemID(logCtx, gem.ID.String())
		s.logg.Info(logCtx, "stk push sent")
	}

	return &InitiateResult{
		PaymentID:         payment.ID,
		CheckoutRequestID: checkoutID,
		Amount:            amount,
		Currency:          enums.CurrencyKES,
		CustomerMessage:   push.CustomerMessage,
	}, nil
}

// HandleCallback always acknowledges Safaricom unless the body is unusable;
// failures after parsing are logged and the callback is still accepted.
func (s *service) HandleCallback(ctx context.Context, raw []byte) mpesa.Ack {
	cb, err := mpesa.ParseCallback(raw)
	if err != nil {
		s.warn(ctx, "rejecting malformed mpesa callback", err)
		return mpesa.AckRejected
	}

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, cb.CheckoutRequestID)
		if err != nil {
			s.warn(ctx, "mpesa callback idempotency check failed", err)
		} else if seen {
			s.debug(ctx, "duplicate mpesa callback "+cb.CheckoutRequestID)
			return mpesa.AckAccepted
		}
	}

	payment, err := s.repo.FindByCheckoutID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.warn(ctx, "mpesa callback for unknown checkout "+cb.CheckoutRequestID, err)
			return mpesa.AckAccepted
		}
		s.releaseGuard(ctx, cb.CheckoutRequestID)
		s.logError(ctx, "load payment for callback", err)
		return mpesa.AckAccepted
	}
	if payment.Status != enums.PaymentStatusPending {
		return mpesa.AckAccepted
	}

	code := cb.ResultCode
	desc := cb.ResultDesc
	outcome := Outcome{ResultCode: &code, ResultDesc: &desc, At: s.now().UTC()}
	if cb.ResultCode == mpesa.ResultSuccess {
		outcome.Status = enums.PaymentStatusCompleted
		if cb.Receipt != "" {
			receipt := cb.Receipt
			outcome.Receipt = &receipt
		}
		if paid, err := decimal.NewFromString(cb.Amount); err == nil && !paid.Equal(payment.Amount) {
			s.warn(ctx, fmt.Sprintf("callback amount %s differs from payment amount %s", paid, payment.Amount), nil)
		}
	} else {
		outcome.Status = enums.PaymentStatusFailed
	}

	if _, err := s.finalize(ctx, payment, outcome, SourceCallback); err != nil {
		s.releaseGuard(ctx, cb.CheckoutRequestID)
		s.logError(ctx, "finalize payment from callback", err)
	}
	return mpesa.AckAccepted
}

func (s *service) PollStatus(ctx context.Context, viewer visibility.Viewer, paymentID uuid.UUID) (*PaymentDTO, error) {
	if viewer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if payment.UserID != viewer.ID && viewer.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}

	if payment.Status == enums.PaymentStatusPending && payment.CheckoutRequestID != nil {
		if updated, err := s.query(ctx, payment, SourcePoll); err != nil {
			s.warn(ctx, "stk query failed", err)
		} else {
			payment = updated
		}
	}
	return FromModel(payment), nil
}

// query asks the gateway for a pending payment's state and finalises it
// when the answer is terminal. It returns the freshest stored row.
func (s *service) query(ctx context.Context, payment *models.Payment, source string) (*models.Payment, error) {
	res, err := s.gateway.STKQuery(ctx, *payment.CheckoutRequestID)
	if err != nil {
		return payment, err
	}
	code, ok := res.Code()
	if !ok || code == mpesa.ResultStillPending {
		return payment, nil
	}

	outcome := Outcome{ResultCode: &code, At: s.now().UTC()}
	switch code {
	case mpesa.ResultSuccess:
		outcome.Status = enums.PaymentStatusCompleted
		desc := res.ResultDesc
		outcome.ResultDesc = &desc
	case mpesa.ResultUserCancelled:
		outcome.Status = enums.PaymentStatusFailed
		desc := msgCancelledByUser
		outcome.ResultDesc = &desc
	default:
		outcome.Status = enums.PaymentStatusFailed
		desc := res.ResultDesc
		outcome.ResultDesc = &desc
	}

	if _, err := s.finalize(ctx, payment, outcome, source); err != nil {
		return payment, err
	}
	return s.repo.FindByID(ctx, payment.ID)
}

// finalize writes the terminal status and, only for the winning writer,
// activates the gem term and emits the payment event in the same transaction.
func (s *service) finalize(ctx context.Context, payment *models.Payment, outcome Outcome, source string) (bool, error) {
	var won bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		won, err = s.repo.WithTx(tx).Finalize(ctx, payment.ID, outcome)
		if err != nil || !won {
			return err
		}

		event := payloads.PaymentStatusEvent{
			PaymentID: payment.ID,
			GemID:     payment.GemID,
			UserID:    payment.UserID,
			Status:    outcome.Status,
			Purpose:   payment.Purpose,
			Tier:      payment.Tier,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Source:    source,
		}
		if outcome.Receipt != nil {
			event.Receipt = *outcome.Receipt
		}
		if outcome.ResultDesc != nil && outcome.Status == enums.PaymentStatusFailed {
			event.Reason = *outcome.ResultDesc
		}

		eventType := enums.EventPaymentFailed
		if outcome.Status == enums.PaymentStatusCompleted {
			eventType = enums.EventPaymentCompleted
			termEnd := payment.TermEndAt
			event.TermEndAt = &termEnd
		}

		if payment.GemID != nil {
			gemRepo := s.gems.WithTx(tx)
			gem, err := gemRepo.FindByID(ctx, *payment.GemID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				// Gem deleted while the push was outstanding; record the payment anyway.
			case err != nil:
				return err
			default:
				event.GemName = gem.Name
				if outcome.Status == enums.PaymentStatusCompleted {
					var tier *enums.GemTier
					if payment.Tier == enums.GemTierFeatured {
						featured := enums.GemTierFeatured
						tier = &featured
					}
					if err := gemRepo.ActivateTerm(ctx, gem.ID, payment.TermStartAt, payment.TermEndAt, tier); err != nil {
						return fmt.Errorf("activate gem term: %w", err)
					}
				}
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: payment.UserID, Role: string(enums.RoleOwner)},
			Data:          event,
		})
	})
	if err != nil {
		return false, err
	}
	if won {
		s.metrics.IncFinalized(string(outcome.Status), source)
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithPaymentID(ctx, payment.ID.String()), map[string]any{
				"status": string(outcome.Status),
				"source": source,
			})
			s.logg.Info(logCtx, "payment finalized")
		}
	}
	return won, nil
}

func (s *service) ListMine(ctx context.Context, viewer visibility.Viewer, page, limit int) (pagination.OffsetResult[PaymentDTO], error) {
	if viewer.ID == uuid.Nil {
		return pagination.OffsetResult[PaymentDTO]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	p := pagination.NormalizePage(page, limit)
	rows, total, err := s.repo.ListByUser(ctx, viewer.ID, p)
	if err != nil {
		return pagination.OffsetResult[PaymentDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return pagination.NewOffsetResult(toDTOs(rows), p, total), nil
}

// List is the admin payment listing; callers must pass the admin gate first.
func (s *service) List(ctx context.Context, filters ListFilters) (pagination.OffsetResult[PaymentDTO], error) {
	p := pagination.NormalizePage(filters.Page, filters.Limit)
	rows, total, err := s.repo.List(ctx, filters, p)
	if err != nil {
		return pagination.OffsetResult[PaymentDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return pagination.NewOffsetResult(toDTOs(rows), p, total), nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx, s.now().UTC().Add(-statsWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment stats")
	}
	return stats, nil
}

// ReconcilePending polls payments whose callback never arrived and fails
// the ones that have been pending longer than timeout.
func (s *service) ReconcilePending(ctx context.Context, grace, timeout time.Duration, limit int) (ReconcileSummary, error) {
	var summary ReconcileSummary
	now := s.now().UTC()
	rows, err := s.repo.ListPendingBefore(ctx, now.Add(-grace), limit)
	if err != nil {
		return summary, err
	}
	var errs []error
	for i := range rows {
		payment := &rows[i]
		summary.Checked++

		if timeout > 0 && payment.CreatedAt.Before(now.Add(-timeout)) {
			desc := msgTimedOut
			won, err := s.finalize(ctx, payment, Outcome{
				Status:     enums.PaymentStatusFailed,
				ResultDesc: &desc,
				At:         now,
			}, SourceTimeout)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if won {
				summary.TimedOut++
			}
			continue
		}
		if payment.CheckoutRequestID == nil {
			continue
		}
		updated, err := s.query(ctx, payment, SourceReconcile)
		if err != nil {
			s.warn(ctx, "reconcile stk query failed", err)
			continue
		}
		switch updated.Status {
		case enums.PaymentStatusCompleted:
			summary.Completed++
		case enums.PaymentStatusFailed:
			summary.Failed++
		}
	}
	return summary, multierr.Combine(errs...)
}

func toDTOs(rows []models.Payment) []PaymentDTO {
	out := make([]PaymentDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

func accountReference(gem *models.Gem) string {
	return "HG" + strings.ToUpper(strings.ReplaceAll(gem.ID.String(), "-", "")[:10])
}

func (s *service) releaseGuard(ctx context.Context, checkoutID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Delete(ctx, checkoutID); err != nil {
		s.warn(ctx, "release mpesa callback guard", err)
	}
}

func (s *service) debug(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Debug(ctx, msg)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	if err != nil {
		ctx = s.logg.WithField(ctx, "error", err.Error())
	}
	s.logg.Warn(ctx, msg)
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
