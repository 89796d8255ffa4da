package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/repositories"
)

// Pipeline stage names recorded in processing annotations.
const (
	pipelineStageStock     = "stock"
	pipelineStagePricing   = "pricing"
	pipelineStageVouchers  = "vouchers"
	pipelineStageDeduction = "deduction"
)

// pipelineFailure is a typed validation outcome. It ends the run on the
// PROCESSING_FAILED path and is never retried.
type pipelineFailure struct {
	stage   string
	code    domain.ProcessingErrorCode
	message string
}

func (f *pipelineFailure) Error() string {
	return fmt.Sprintf("pipeline %s: %s: %s", f.stage, f.code, f.message)
}

// OrderPipelineDeps bundles collaborators required to construct the pipeline.
type OrderPipelineDeps struct {
	Orders     repositories.OrderRepository
	Variants   repositories.VariantRepository
	Vouchers   VoucherService
	Inventory  InventoryService
	State      OrderService
	UnitOfWork repositories.UnitOfWork
	Tasks      TaskDispatcher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderPipeline struct {
	orders     repositories.OrderRepository
	variants   repositories.VariantRepository
	vouchers   VoucherService
	inventory  InventoryService
	state      OrderService
	unitOfWork repositories.UnitOfWork
	tasks      TaskDispatcher
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewOrderPipeline wires dependencies into a concrete OrderPipeline implementation.
func NewOrderPipeline(deps OrderPipelineDeps) (OrderPipeline, error) {
	if deps.Orders == nil {
		return nil, errors.New("order pipeline: order repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("order pipeline: variant repository is required")
	}
	if deps.Vouchers == nil {
		return nil, errors.New("order pipeline: voucher service is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order pipeline: inventory service is required")
	}
	if deps.State == nil {
		return nil, errors.New("order pipeline: order service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderPipeline{
		orders:     deps.Orders,
		variants:   deps.Variants,
		vouchers:   deps.Vouchers,
		inventory:  deps.Inventory,
		state:      deps.State,
		unitOfWork: unit,
		tasks:      deps.Tasks,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Process runs the post-creation checks for one order. Validation failures
// are terminal and park the order in PROCESSING_FAILED with a typed
// annotation; any other error is returned for the worker to retry.
func (p *orderPipeline) Process(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	// Claim the order. Anything but PENDING means another delivery of the
	// same task already ran; duplicates are expected and harmless.
	order, err := p.state.Transition(ctx, OrderTransitionCommand{
		OrderID:        orderID,
		TargetStatus:   domain.OrderStatusProcessing,
		ExpectedStatus: valuePtr(domain.OrderStatusPending),
	})
	if err != nil {
		if errors.Is(err, ErrOrderConflict) || errors.Is(err, ErrOrderInvalidTransition) {
			p.logger(ctx, "pipeline.skipped", map[string]any{
				"order": orderID,
				"error": err.Error(),
			})
			return nil
		}
		return err
	}

	totals, err := p.validate(ctx, order)
	if err != nil {
		var failure *pipelineFailure
		if errors.As(err, &failure) {
			return p.fail(ctx, order, failure)
		}
		return err
	}

	// Deduction is one transaction across all lines; the ledger re-checks
	// availability under the lock regardless of the validation above.
	if _, err := p.inventory.Deduct(ctx, StockMutationCommand{
		Lines:         stockLinesFromItems(order.Items),
		Type:          domain.InventoryTransactionOrder,
		TransactionID: order.ID,
		Once:          true,
	}); err != nil {
		if errors.Is(err, ErrInventoryInsufficientStock) || errors.Is(err, ErrInventoryVariantNotFound) {
			return p.fail(ctx, order, &pipelineFailure{
				stage:   pipelineStageDeduction,
				code:    domain.ProcessingErrorStockDeductionFailed,
				message: err.Error(),
			})
		}
		return err
	}

	if err := p.succeed(ctx, order, totals); err != nil {
		return err
	}

	if _, err := p.state.Transition(ctx, OrderTransitionCommand{
		OrderID:        order.ID,
		TargetStatus:   domain.OrderStatusConfirming,
		ExpectedStatus: valuePtr(domain.OrderStatusProcessingSuccess),
	}); err != nil {
		return err
	}

	for _, code := range order.VoucherCodes {
		if err := p.vouchers.IncrementUsage(ctx, code); err != nil {
			p.logger(ctx, "pipeline.voucher.increment.failed", map[string]any{
				"order":   order.ID,
				"voucher": code,
				"error":   err.Error(),
			})
		}
	}

	p.notify(ctx, NotificationOrderConfirmed, order.ID)
	p.notify(ctx, NotificationStaffNewOrder, order.ID)

	return nil
}

// validate runs the read-only checks (stages: stock, pricing, vouchers) and
// returns the recomputed totals. It mutates nothing.
func (p *orderPipeline) validate(ctx context.Context, order Order) (OrderTotals, error) {
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.VariantID)
	}

	variants, err := p.variants.FindByIDs(ctx, ids)
	if err != nil {
		return OrderTotals{}, mapOrderRepositoryError(err)
	}

	for _, item := range order.Items {
		variant, ok := variants[item.VariantID]
		if !ok {
			return OrderTotals{}, &pipelineFailure{
				stage:   pipelineStageStock,
				code:    domain.ProcessingErrorStockUnavailable,
				message: fmt.Sprintf("variant %s no longer exists", item.VariantID),
			}
		}
		if !variant.Active {
			return OrderTotals{}, &pipelineFailure{
				stage:   pipelineStageStock,
				code:    domain.ProcessingErrorStockUnavailable,
				message: fmt.Sprintf("variant %s is no longer sold", item.VariantID),
			}
		}
		if variant.Stock < item.Quantity {
			return OrderTotals{}, &pipelineFailure{
				stage:   pipelineStageStock,
				code:    domain.ProcessingErrorStockUnavailable,
				message: fmt.Sprintf("variant %s has %d in stock, order needs %d", item.VariantID, variant.Stock, item.Quantity),
			}
		}
	}

	for _, item := range order.Items {
		if price := variants[item.VariantID].Price; price != item.UnitPrice {
			return OrderTotals{}, &pipelineFailure{
				stage:   pipelineStagePricing,
				code:    domain.ProcessingErrorPriceChanged,
				message: fmt.Sprintf("variant %s now costs %d, order snapshot has %d", item.VariantID, price, item.UnitPrice),
			}
		}
	}

	totals := OrderTotals{
		Subtotal:     order.Totals.Subtotal,
		ShippingCost: order.Totals.ShippingCost,
	}
	var discount int64
	for _, code := range order.VoucherCodes {
		voucher, err := p.vouchers.GetVoucher(ctx, code)
		if err != nil {
			if errors.Is(err, ErrVoucherNotFound) {
				return OrderTotals{}, &pipelineFailure{
					stage:   pipelineStageVouchers,
					code:    domain.ProcessingErrorVoucherInvalid,
					message: fmt.Sprintf("voucher %s no longer exists", code),
				}
			}
			return OrderTotals{}, err
		}
		ok, reason, err := p.vouchers.CanUse(ctx, voucher, order.CustomerID, totals.Subtotal)
		if err != nil {
			return OrderTotals{}, err
		}
		if !ok {
			return OrderTotals{}, &pipelineFailure{
				stage:   pipelineStageVouchers,
				code:    domain.ProcessingErrorVoucherInvalid,
				message: fmt.Sprintf("voucher %s: %s", code, reason),
			}
		}
		discount += p.vouchers.CalculateDiscount(voucher, totals.Subtotal, totals.ShippingCost)
	}
	if discount > totals.Subtotal+totals.ShippingCost {
		discount = totals.Subtotal + totals.ShippingCost
	}
	totals.Discount = discount
	totals.Total = totals.Subtotal + totals.ShippingCost - totals.Discount
	if !totals.Consistent() {
		return OrderTotals{}, fmt.Errorf("%w: inconsistent totals after voucher recompute", ErrOrderInvalidInput)
	}

	return totals, nil
}

// succeed commits PROCESSING to PROCESSING_SUCCESS together with the
// recomputed totals in one transactional unit.
func (p *orderPipeline) succeed(ctx context.Context, order Order, totals OrderTotals) error {
	return p.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := p.state.Transition(txCtx, OrderTransitionCommand{
			OrderID:        order.ID,
			TargetStatus:   domain.OrderStatusProcessingSuccess,
			ExpectedStatus: valuePtr(domain.OrderStatusProcessing),
		})
		if err != nil {
			return err
		}
		updated.Totals = totals
		updated.ProcessingError = nil
		return mapOrderRepositoryError(p.orders.Update(txCtx, updated))
	})
}

// fail commits PROCESSING to PROCESSING_FAILED together with the typed
// annotation, then emits the failure notification. Validation failures are
// terminal: fail returns nil so the worker acks the task.
func (p *orderPipeline) fail(ctx context.Context, order Order, failure *pipelineFailure) error {
	now := p.clock()

	err := p.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		updated, err := p.state.Transition(txCtx, OrderTransitionCommand{
			OrderID:        order.ID,
			TargetStatus:   domain.OrderStatusProcessingFailed,
			ExpectedStatus: valuePtr(domain.OrderStatusProcessing),
			Note:           failure.message,
		})
		if err != nil {
			return err
		}
		updated.ProcessingError = &domain.ProcessingAnnotation{
			Stage:      failure.stage,
			Code:       failure.code,
			Message:    failure.message,
			OccurredAt: now,
		}
		return mapOrderRepositoryError(p.orders.Update(txCtx, updated))
	})
	if err != nil {
		return err
	}

	p.logger(ctx, "pipeline.failed", map[string]any{
		"order": order.ID,
		"stage": failure.stage,
		"code":  string(failure.code),
	})
	p.notify(ctx, NotificationOrderFailed, order.ID)

	return nil
}

func (p *orderPipeline) notify(ctx context.Context, event string, orderID string) {
	if p.tasks == nil {
		return
	}
	if err := p.tasks.EnqueueNotification(ctx, NotificationTask{Event: event, OrderID: orderID}); err != nil {
		p.logger(ctx, "pipeline.notify.failed", map[string]any{
			"order": orderID,
			"event": event,
			"error": err.Error(),
		})
	}
}
