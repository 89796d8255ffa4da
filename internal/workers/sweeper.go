package workers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/services"
)

const (
	defaultSweepInterval     = time.Minute
	defaultPendingExpiry     = 15 * time.Minute
	defaultAutoCompleteAfter = 7 * 24 * time.Hour
	sweepBatchSize           = 100
)

// SweeperDeps bundles collaborators required to construct the sweeper.
type SweeperDeps struct {
	Orders  services.OrderService
	Refunds services.RefundService
	Clock   func() time.Time
	Logger  *zap.Logger

	Interval          time.Duration
	PendingExpiry     time.Duration
	AutoCompleteAfter time.Duration
}

// Sweeper periodically reclaims stale orders: PENDING orders whose payment
// window expired are cancelled, DELIVERED orders past the refund window are
// completed. Both passes are idempotent; a rerun finds nothing left to do.
type Sweeper struct {
	orders  services.OrderService
	refunds services.RefundService
	clock   func() time.Time
	logger  *zap.Logger

	interval          time.Duration
	pendingExpiry     time.Duration
	autoCompleteAfter time.Duration
}

// NewSweeper constructs the stale order sweeper.
func NewSweeper(deps SweeperDeps) (*Sweeper, error) {
	if deps.Orders == nil {
		return nil, errors.New("sweeper: order service is required")
	}
	if deps.Refunds == nil {
		return nil, errors.New("sweeper: refund service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	pendingExpiry := deps.PendingExpiry
	if pendingExpiry <= 0 {
		pendingExpiry = defaultPendingExpiry
	}
	autoCompleteAfter := deps.AutoCompleteAfter
	if autoCompleteAfter <= 0 {
		autoCompleteAfter = defaultAutoCompleteAfter
	}

	return &Sweeper{
		orders:  deps.Orders,
		refunds: deps.Refunds,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:            logger,
		interval:          interval,
		pendingExpiry:     pendingExpiry,
		autoCompleteAfter: autoCompleteAfter,
	}, nil
}

// Run executes both sweeps on the configured interval until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.ExpirePending(ctx)
			s.AutoCompleteDelivered(ctx)
		}
	}
}

// ExpirePending cancels orders still PENDING past the payment window and
// marks their payment failed.
func (s *Sweeper) ExpirePending(ctx context.Context) {
	now := s.clock()
	ids, err := s.orders.ListStale(ctx, domain.OrderStatusPending, now.Add(-s.pendingExpiry), sweepBatchSize)
	if err != nil {
		s.logger.Error("sweep.expire.list.failed", zap.Error(err))
		return
	}

	for _, id := range ids {
		order, err := s.refunds.Cancel(ctx, services.CancelOrderCommand{
			OrderID: id,
			Reason:  "payment window expired",
		})
		if err != nil {
			// Another sweep or a customer action may have moved the order
			// between the listing and here.
			if errors.Is(err, services.ErrOrderInvalidTransition) || errors.Is(err, services.ErrOrderConflict) {
				continue
			}
			s.logger.Error("sweep.expire.cancel.failed", zap.String("orderId", id), zap.Error(err))
			continue
		}

		if order.PaymentStatus != domain.PaymentStatusPaid {
			if _, err := s.orders.RecordPaymentResult(ctx, services.PaymentResultCommand{
				OrderID:    id,
				Success:    false,
				OccurredAt: now,
			}); err != nil {
				s.logger.Error("sweep.expire.payment.failed", zap.String("orderId", id), zap.Error(err))
			}
		}

		s.logger.Info("sweep.order.expired", zap.String("orderId", id))
	}
}

// AutoCompleteDelivered closes DELIVERED orders once the refund window has
// passed without a claim.
func (s *Sweeper) AutoCompleteDelivered(ctx context.Context) {
	now := s.clock()
	ids, err := s.orders.ListStale(ctx, domain.OrderStatusDelivered, now.Add(-s.autoCompleteAfter), sweepBatchSize)
	if err != nil {
		s.logger.Error("sweep.complete.list.failed", zap.Error(err))
		return
	}

	for _, id := range ids {
		if _, err := s.orders.Complete(ctx, services.OrderActionCommand{OrderID: id}); err != nil {
			if errors.Is(err, services.ErrOrderInvalidTransition) || errors.Is(err, services.ErrOrderConflict) {
				continue
			}
			s.logger.Error("sweep.complete.failed", zap.String("orderId", id), zap.Error(err))
			continue
		}
		s.logger.Info("sweep.order.completed", zap.String("orderId", id))
	}
}
