package worker

import (
	"context"
	"errors"
	"time"

	"bookstore-payment/internal/domain"
	"bookstore-payment/internal/repo"
	"bookstore-payment/internal/service"

	"go.uber.org/zap"
)

// ReconciliationWorker finds gateway payments that never settled (lost
// callbacks, abandoned redirects) and polls the gateway for each. It runs
// once per invocation; scheduling is left to the operator.
type ReconciliationWorker struct {
	orderRepo      repo.OrderRepo
	reconciliation service.ReconciliationService
	olderThan      time.Duration
	batchSize      int
	logger         *zap.Logger
}

type SweepResult struct {
	Checked  int
	Settled  int
	Failed   int
	Conflict int
}

func NewReconciliationWorker(
	orderRepo repo.OrderRepo,
	reconciliation service.ReconciliationService,
	olderThan time.Duration,
	batchSize int,
	logger *zap.Logger,
) *ReconciliationWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconciliationWorker{
		orderRepo:      orderRepo,
		reconciliation: reconciliation,
		olderThan:      olderThan,
		batchSize:      batchSize,
		logger:         logger,
	}
}

func (rw *ReconciliationWorker) RunOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	stale, err := rw.orderRepo.FindStalePayments(ctx, rw.olderThan, rw.batchSize)
	if err != nil {
		return result, err
	}
	if len(stale) == 0 {
		return result, nil
	}

	rw.logger.Info("Found stale gateway payments", zap.Int("count", len(stale)))

	for _, order := range stale {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		updated, err := rw.reconciliation.PollStatus(ctx, service.System, order.ID.String())
		switch {
		case errors.Is(err, domain.ErrConcurrentModification):
			// someone else touched it; the next sweep sees the fresh state
			result.Conflict++
			continue
		case err != nil:
			result.Failed++
			rw.logger.Warn("Failed to reconcile order", zap.String("order_id", order.ID.String()), zap.Error(err))
			continue
		}

		if updated.PaymentReference != nil && updated.PaymentReference.Status == domain.PaymentCompleted {
			result.Settled++
			rw.logger.Info("Recovered settled payment", zap.String("order_id", order.ID.String()))
		}
	}
	return result, nil
}
