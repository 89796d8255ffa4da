package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/payments"
	"github.com/lumen-eyewear/api/internal/repositories"
)

// deductedStatuses are the states in which the pipeline has already taken
// stock. Cancelling from anywhere else has nothing to restore.
var deductedStatuses = []domain.OrderStatus{
	domain.OrderStatusProcessingSuccess,
	domain.OrderStatusConfirming,
	domain.OrderStatusConfirmed,
	domain.OrderStatusDelivering,
}

// RefundServiceDeps bundles collaborators required to construct the refund orchestrator.
type RefundServiceDeps struct {
	Orders    repositories.OrderRepository
	State     OrderService
	Inventory InventoryService
	Gateway   payments.Gateway
	Tasks     TaskDispatcher
	Clock     func() time.Time
	Sanitize  func(string) string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	orders    repositories.OrderRepository
	state     OrderService
	inventory InventoryService
	gateway   payments.Gateway
	tasks     TaskDispatcher
	clock     func() time.Time
	sanitize  func(string) string
	logger    func(context.Context, string, map[string]any)
}

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Orders == nil {
		return nil, errors.New("refund service: order repository is required")
	}
	if deps.State == nil {
		return nil, errors.New("refund service: order service is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("refund service: inventory service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	sanitize := deps.Sanitize
	if sanitize == nil {
		policy := bluemonday.StrictPolicy()
		sanitize = func(v string) string {
			return strings.TrimSpace(policy.Sanitize(v))
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &refundService{
		orders:    deps.Orders,
		state:     deps.State,
		inventory: deps.Inventory,
		gateway:   deps.Gateway,
		tasks:     deps.Tasks,
		clock: func() time.Time {
			return clock().UTC()
		},
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

// Cancel restores any deducted stock, then flips the order to CANCELED, or to
// REFUNDING with a scheduled refund when it was already paid.
func (s *refundService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order status %q cannot be canceled", ErrOrderInvalidTransition, order.Status)
	}
	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, order.Status)
	}

	reason := s.sanitize(cmd.Reason)

	// The restore commits before the status flip, so a cancel retried after a
	// failed transition replays against the ledger; Once keeps it a no-op.
	if slices.Contains(deductedStatuses, order.Status) {
		if _, err := s.inventory.Restore(ctx, StockMutationCommand{
			Lines:         stockLinesFromItems(order.Items),
			Type:          domain.InventoryTransactionRefund,
			TransactionID: order.ID,
			ActorID:       cmd.ActorID,
			Once:          true,
		}); err != nil {
			return Order{}, err
		}
	}

	canceled, err := s.state.Cancel(ctx, OrderActionCommand{
		OrderID:        orderID,
		ActorID:        cmd.ActorID,
		Reason:         reason,
		ExpectedStatus: cmd.ExpectedStatus,
	})
	if err != nil {
		return Order{}, err
	}

	if canceled.Status == domain.OrderStatusRefunding && s.tasks != nil {
		// Stock has already been returned above; the refund workflow must not
		// restore it a second time.
		if err := s.tasks.EnqueueProcessRefund(ctx, ProcessRefundTask{
			OrderID:       canceled.ID,
			Reason:        reason,
			StockRestored: true,
		}); err != nil {
			s.logger(ctx, "refund.enqueue.failed", map[string]any{
				"order": canceled.ID,
				"error": err.Error(),
			})
		}
	}

	return canceled, nil
}

// ProcessRefund drives an approved refund to completion: gateway refund,
// inventory restoration, then the REFUNDING to REFUNDED transition with
// payment status set to refunded.
func (s *refundService) ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	reason := s.sanitize(cmd.Reason)

	switch order.Status {
	case domain.OrderStatusRefunded:
		// Duplicate task delivery; the refund already completed.
		return order, nil
	case domain.OrderStatusRefundRequested:
		order, err = s.state.Transition(ctx, OrderTransitionCommand{
			OrderID:      orderID,
			TargetStatus: domain.OrderStatusRefunding,
			ActorID:      cmd.ActorID,
			Note:         reason,
		})
		if err != nil {
			return Order{}, err
		}
	case domain.OrderStatusRefunding:
		// Resumed, either from a paid cancellation or a retried task.
	default:
		return Order{}, fmt.Errorf("%w: cannot process refund from status %q", ErrOrderInvalidTransition, order.Status)
	}

	// A gateway failure is logged for manual follow-up and never blocks the
	// inventory restoration or the status progression.
	if s.gateway != nil && order.PaymentStatus == domain.PaymentStatusPaid && order.PaymentMethod == domain.PaymentMethodGateway {
		if err := s.gateway.Refund(ctx, payments.RefundRequest{
			OrderID:     order.ID,
			OrderNumber: order.Number,
			Amount:      order.Totals.Total,
			Reason:      reason,
		}); err != nil {
			s.logger(ctx, "refund.gateway.failed", map[string]any{
				"order":          order.ID,
				"error":          err.Error(),
				"manualFollowUp": true,
			})
		}
	}

	// A redelivered task arrives with StockRestored unset even when an earlier
	// attempt already returned the stock; the Once guard on the ledger keeps
	// the replay from inflating inventory.
	if !cmd.StockRestored {
		if _, err := s.inventory.Restore(ctx, StockMutationCommand{
			Lines:         stockLinesFromItems(order.Items),
			Type:          domain.InventoryTransactionRefund,
			TransactionID: order.ID,
			ActorID:       cmd.ActorID,
			Once:          true,
		}); err != nil {
			return Order{}, err
		}
	}

	refunded, err := s.state.Transition(ctx, OrderTransitionCommand{
		OrderID:       orderID,
		TargetStatus:  domain.OrderStatusRefunded,
		ActorID:       cmd.ActorID,
		Note:          reason,
		PaymentStatus: valuePtr(domain.PaymentStatusRefunded),
	})
	if err != nil {
		return Order{}, err
	}

	if s.tasks != nil {
		if err := s.tasks.EnqueueNotification(ctx, NotificationTask{
			Event:   NotificationRefundCompleted,
			OrderID: refunded.ID,
		}); err != nil {
			s.logger(ctx, "refund.notify.failed", map[string]any{
				"order": refunded.ID,
				"error": err.Error(),
			})
		}
	}

	return refunded, nil
}

// RejectRefund returns a REFUND_REQUESTED order to the delivered or completed
// state it came from, recorded in its status history.
func (s *refundService) RejectRefund(ctx context.Context, cmd RejectRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if order.Status != domain.OrderStatusRefundRequested {
		return Order{}, fmt.Errorf("%w: refund rejection requires an open refund request, status was %q", ErrOrderInvalidTransition, order.Status)
	}

	history, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	target := domain.OrderStatusDelivered
	for i := len(history) - 1; i >= 0; i-- {
		to := history[i].ToStatus
		if to == domain.OrderStatusDelivered || to == domain.OrderStatusCompleted {
			target = to
			break
		}
	}

	return s.state.Transition(ctx, OrderTransitionCommand{
		OrderID:        orderID,
		TargetStatus:   target,
		ActorID:        cmd.ActorID,
		Note:           s.sanitize(cmd.Reason),
		ExpectedStatus: valuePtr(domain.OrderStatusRefundRequested),
	})
}

func stockLinesFromItems(items []OrderItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, repositories.StockLine{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return lines
}
