package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

const defaultReconcileBatch = 100

type pendingReconciler interface {
	ReconcilePending(ctx context.Context, grace, timeout time.Duration, limit int) (payments.ReconcileSummary, error)
}

type PaymentReconcileJobParams struct {
	Logger    *logger.Logger
	Payments  pendingReconciler
	Grace     time.Duration
	Timeout   time.Duration
	BatchSize int
}

// NewPaymentReconcileJob polls M-Pesa for payments whose callback never
// arrived and fails the ones pending past the timeout.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	timeout := params.Timeout
	if timeout <= grace {
		timeout = 24 * time.Hour
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentReconcileJob{
		logg:     params.Logger,
		payments: params.Payments,
		grace:    grace,
		timeout:  timeout,
		batch:    batch,
	}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	payments pendingReconciler
	grace    time.Duration
	timeout  time.Duration
	batch    int
}

func (j *paymentReconcileJob) Name() string { return "payment_reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	summary, err := j.payments.ReconcilePending(ctx, j.grace, j.timeout, j.batch)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked":   summary.Checked,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"timed_out": summary.TimedOut,
	}), "payment reconcile pass")
	if err != nil {
		return fmt.Errorf("reconcile pending payments: %w", err)
	}
	return nil
}
