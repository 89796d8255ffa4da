package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentRecorded = "order.payment.recorded"

	orderIDPrefix   = "ord_"
	historyIDPrefix = "osh_"

	orderNumberCounter = "orders"

	defaultShippingCost = 30_000
	defaultRefundWindow = 7 * 24 * time.Hour
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates the target status is not adjacent to
	// the current one. The order is left untouched.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderRefundWindowClosed indicates the delivery happened too long ago
	// for a refund claim.
	ErrOrderRefundWindowClosed = errors.New("order: refund window closed")
)

// orderStateTransitions is the full adjacency table of the lifecycle.
// REFUNDED and CANCELED are terminal and have no outgoing edges.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:           {domain.OrderStatusProcessing, domain.OrderStatusCanceled, domain.OrderStatusRefunding},
	domain.OrderStatusProcessing:        {domain.OrderStatusProcessingSuccess, domain.OrderStatusProcessingFailed},
	domain.OrderStatusProcessingSuccess: {domain.OrderStatusConfirming, domain.OrderStatusCanceled, domain.OrderStatusRefunding},
	domain.OrderStatusProcessingFailed:  {domain.OrderStatusCanceled, domain.OrderStatusRefunding},
	domain.OrderStatusConfirming:        {domain.OrderStatusConfirmed, domain.OrderStatusCanceled, domain.OrderStatusRefunding},
	domain.OrderStatusConfirmed:         {domain.OrderStatusDelivering, domain.OrderStatusCanceled, domain.OrderStatusRefunding},
	domain.OrderStatusDelivering:        {domain.OrderStatusDelivered, domain.OrderStatusCanceled, domain.OrderStatusRefunding},
	domain.OrderStatusDelivered:         {domain.OrderStatusCompleted, domain.OrderStatusRefundRequested},
	domain.OrderStatusCompleted:         {domain.OrderStatusRefundRequested},
	domain.OrderStatusRefundRequested:   {domain.OrderStatusRefunding, domain.OrderStatusDelivered, domain.OrderStatusCompleted},
	domain.OrderStatusRefunding:         {domain.OrderStatusRefunded},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessingSuccess,
	domain.OrderStatusProcessingFailed,
	domain.OrderStatusConfirming,
	domain.OrderStatusConfirmed,
	domain.OrderStatusDelivering,
}

// refundableStatuses are the states a paid order can claim a refund from.
var refundableStatuses = []domain.OrderStatus{
	domain.OrderStatusDelivered,
	domain.OrderStatusCompleted,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderConfig carries the tunable lifecycle parameters.
type OrderConfig struct {
	// ShippingCost is the flat shipping fee applied to every order, in VND.
	ShippingCost int64
	// RefundWindow is how long after delivery a refund may be requested.
	RefundWindow time.Duration
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Variants    repositories.VariantRepository
	Counters    repositories.CounterRepository
	Vouchers    VoucherService
	UnitOfWork  repositories.UnitOfWork
	Tasks       TaskDispatcher
	Config      OrderConfig
	Clock       func() time.Time
	IDGenerator func() string
	Sanitize    func(string) string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	variants   repositories.VariantRepository
	counters   repositories.CounterRepository
	vouchers   VoucherService
	unitOfWork repositories.UnitOfWork
	tasks      TaskDispatcher
	cfg        OrderConfig
	clock      func() time.Time
	newID      func() string
	sanitize   func(string) string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("order service: variant repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Vouchers == nil {
		return nil, errors.New("order service: voucher service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	cfg := deps.Config
	if cfg.ShippingCost <= 0 {
		cfg.ShippingCost = defaultShippingCost
	}
	if cfg.RefundWindow <= 0 {
		cfg.RefundWindow = defaultRefundWindow
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
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

	return &orderService{
		orders:     deps.Orders,
		variants:   deps.Variants,
		counters:   deps.Counters,
		vouchers:   deps.Vouchers,
		unitOfWork: unit,
		tasks:      deps.Tasks,
		cfg:        cfg,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Items {
		if strings.TrimSpace(line.VariantID) == "" {
			return Order{}, fmt.Errorf("%w: variant id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity for %s must be > 0", ErrOrderInvalidInput, line.VariantID)
		}
	}
	if strings.TrimSpace(cmd.ShippingAddress.Recipient) == "" || strings.TrimSpace(cmd.ShippingAddress.Phone) == "" {
		return Order{}, fmt.Errorf("%w: shipping recipient and phone are required", ErrOrderInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD, domain.PaymentMethodGateway:
	default:
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	now := s.now()
	customerID := strings.TrimSpace(cmd.CustomerID)

	items, subtotal, err := s.snapshotItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	totals := OrderTotals{
		Subtotal:     subtotal,
		ShippingCost: s.cfg.ShippingCost,
	}

	voucherCodes, discount, err := s.applyVouchers(ctx, cmd.VoucherCodes, customerID, subtotal, totals.ShippingCost)
	if err != nil {
		return Order{}, err
	}
	totals.Discount = discount
	totals.Total = totals.Subtotal + totals.ShippingCost - totals.Discount
	if !totals.Consistent() || totals.Total < 0 {
		return Order{}, fmt.Errorf("%w: inconsistent order totals", ErrOrderInvalidInput)
	}

	number, err := s.generateOrderNumber(ctx)
	if err != nil {
		return Order{}, err
	}

	address := cmd.ShippingAddress
	order := Order{
		ID:              orderIDPrefix + s.newID(),
		Number:          number,
		CustomerID:      customerID,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		Totals:          totals,
		Items:           items,
		ShippingAddress: &address,
		VoucherCodes:    voucherCodes,
		PlacedAt:        &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapOrderRepositoryError(err)
		}
		return s.appendHistory(txCtx, order, "", order.Status, strings.TrimSpace(cmd.ActorID), "", now)
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
	})

	if s.tasks != nil {
		if err := s.tasks.EnqueueProcessOrder(ctx, ProcessOrderTask{OrderID: order.ID}); err != nil {
			// The expiration sweep reclaims orders whose pipeline run never
			// started, so a failed enqueue is logged rather than fatal.
			s.logger(ctx, "order.task.enqueue.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}

	return order, nil
}

func (s *orderService) snapshotItems(ctx context.Context, lines []OrderLineInput) ([]OrderItem, int64, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, strings.TrimSpace(line.VariantID))
	}

	variants, err := s.variants.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, mapOrderRepositoryError(err)
	}

	items := make([]OrderItem, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		id := strings.TrimSpace(line.VariantID)
		variant, ok := variants[id]
		if !ok {
			return nil, 0, fmt.Errorf("%w: variant %s does not exist", ErrOrderInvalidInput, id)
		}
		if !variant.Active {
			return nil, 0, fmt.Errorf("%w: variant %s is not purchasable", ErrOrderInvalidInput, id)
		}
		lineTotal := variant.Price * line.Quantity
		items = append(items, OrderItem{
			VariantID:   id,
			SKU:         variant.SKU,
			ProductName: variant.Name,
			Attributes:  maps.Clone(variant.Attributes),
			UnitPrice:   variant.Price,
			Quantity:    line.Quantity,
			LineTotal:   lineTotal,
		})
		subtotal += lineTotal
	}
	return items, subtotal, nil
}

func (s *orderService) applyVouchers(ctx context.Context, codes []string, customerID string, subtotal int64, shippingCost int64) ([]string, int64, error) {
	var applied []string
	var discount int64
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		voucher, err := s.vouchers.GetVoucher(ctx, code)
		if err != nil {
			if errors.Is(err, ErrVoucherNotFound) {
				return nil, 0, fmt.Errorf("%w: voucher %s does not exist", ErrOrderInvalidInput, code)
			}
			return nil, 0, err
		}
		ok, reason, err := s.vouchers.CanUse(ctx, voucher, customerID, subtotal)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, fmt.Errorf("%w: voucher %s: %s", ErrOrderInvalidInput, code, reason)
		}
		discount += s.vouchers.CalculateDiscount(voucher, subtotal, shippingCost)
		applied = append(applied, code)
	}
	if discount > subtotal+shippingCost {
		discount = subtotal + shippingCost
	}
	return applied, discount, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (OrderDetails, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderDetails{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderDetails{}, mapOrderRepositoryError(err)
	}

	return OrderDetails{
		Order:        order,
		Capabilities: s.capabilitiesFor(order, s.now()),
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListHistory(ctx context.Context, orderID string) ([]OrderStatusHistory, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	entries, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	return entries, nil
}

// Transition applies one status change. The read, the guard, the mutation,
// the history record and the write all happen inside a single transaction;
// concurrent transitions on the same order serialise against each other.
func (s *orderService) Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error) {
	return s.transition(ctx, cmd, nil)
}

func (s *orderService) transition(ctx context.Context, cmd OrderTransitionCommand, mutate func(*Order) error) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	note := s.sanitize(cmd.Note)
	now := s.now()

	var order Order
	var prev domain.OrderStatus

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapOrderRepositoryError(err)
		}

		if cmd.ExpectedStatus != nil && loaded.Status != *cmd.ExpectedStatus {
			return fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, loaded.Status)
		}
		if !canTransition(loaded.Status, target) {
			return fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, loaded.Status, target)
		}

		prev = loaded.Status
		loaded.Status = target
		loaded.UpdatedAt = now
		stampStatusTimestamp(&loaded, target, now)
		if cmd.PaymentStatus != nil {
			loaded.PaymentStatus = *cmd.PaymentStatus
		}

		if mutate != nil {
			if err := mutate(&loaded); err != nil {
				return err
			}
		}

		if err := s.orders.Update(txCtx, loaded); err != nil {
			return mapOrderRepositoryError(err)
		}
		if err := s.appendHistory(txCtx, loaded, prev, target, actor, note, now); err != nil {
			return err
		}

		order = loaded
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       transitionMetadata(note),
	})

	return order, nil
}

func (s *orderService) Confirm(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, OrderTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusConfirmed,
		ActorID:        cmd.ActorID,
		Note:           cmd.Reason,
		ExpectedStatus: cmd.ExpectedStatus,
	}, nil)
}

func (s *orderService) MarkDelivering(ctx context.Context, cmd MarkDeliveringCommand) (Order, error) {
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	carrier := strings.TrimSpace(cmd.Carrier)
	if tracking == "" || carrier == "" {
		return Order{}, fmt.Errorf("%w: tracking number and carrier are required", ErrOrderInvalidInput)
	}

	return s.transition(ctx, OrderTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusDelivering,
		ActorID:        cmd.ActorID,
		ExpectedStatus: cmd.ExpectedStatus,
	}, func(order *Order) error {
		order.TrackingNumber = tracking
		order.Carrier = carrier
		return nil
	})
}

func (s *orderService) MarkDelivered(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, OrderTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusDelivered,
		ActorID:        cmd.ActorID,
		ExpectedStatus: cmd.ExpectedStatus,
	}, nil)
}

func (s *orderService) Complete(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, OrderTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusCompleted,
		ActorID:        cmd.ActorID,
		ExpectedStatus: cmd.ExpectedStatus,
	}, nil)
}

func (s *orderService) RequestRefund(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	now := s.now()
	return s.transition(ctx, OrderTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusRefundRequested,
		ActorID:        cmd.ActorID,
		Note:           cmd.Reason,
		ExpectedStatus: cmd.ExpectedStatus,
	}, func(order *Order) error {
		return s.checkRefundable(*order, now)
	})
}

func (s *orderService) checkRefundable(order Order, now time.Time) error {
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return fmt.Errorf("%w: refund requires a paid order", ErrOrderInvalidTransition)
	}
	if order.DeliveredAt != nil && now.After(order.DeliveredAt.Add(s.cfg.RefundWindow)) {
		return fmt.Errorf("%w: delivered at %s", ErrOrderRefundWindowClosed, order.DeliveredAt.Format(time.RFC3339))
	}
	return nil
}

func (s *orderService) ApproveRefund(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	order, err := s.transition(ctx, OrderTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusRefunding,
		ActorID:        cmd.ActorID,
		Note:           cmd.Reason,
		ExpectedStatus: valuePtr(domain.OrderStatusRefundRequested),
	}, nil)
	if err != nil {
		return Order{}, err
	}

	if s.tasks != nil {
		if err := s.tasks.EnqueueProcessRefund(ctx, ProcessRefundTask{OrderID: order.ID, Reason: s.sanitize(cmd.Reason)}); err != nil {
			s.logger(ctx, "order.refund.enqueue.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	reason := s.sanitize(cmd.Reason)

	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if !slices.Contains(cancellableStatuses, current.Status) {
		return Order{}, fmt.Errorf("%w: order status %q cannot be canceled", ErrOrderInvalidTransition, current.Status)
	}

	// A paid order owes a refund; it parks in REFUNDING instead of CANCELED.
	target := domain.OrderStatusCanceled
	if current.PaymentStatus == domain.PaymentStatusPaid {
		target = domain.OrderStatusRefunding
	}

	return s.transition(ctx, OrderTransitionCommand{
		OrderID:        orderID,
		TargetStatus:   target,
		ActorID:        cmd.ActorID,
		Note:           reason,
		ExpectedStatus: cmd.ExpectedStatus,
	}, func(order *Order) error {
		order.CancelReason = reason
		return nil
	})
}

func (s *orderService) CancelRefundRequest(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	return s.transition(ctx, OrderTransitionCommand{
		OrderID:        cmd.OrderID,
		TargetStatus:   domain.OrderStatusDelivered,
		ActorID:        cmd.ActorID,
		Note:           cmd.Reason,
		ExpectedStatus: valuePtr(domain.OrderStatusRefundRequested),
	}, nil)
}

func (s *orderService) RecordPaymentResult(ctx context.Context, cmd PaymentResultCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var order Order
	var changed bool

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapOrderRepositoryError(err)
		}

		// A duplicate gateway notification for a settled order changes
		// nothing; the conflict lets the webhook answer the already-confirmed
		// acknowledgement code.
		if loaded.PaymentStatus == domain.PaymentStatusPaid {
			return fmt.Errorf("%w: payment already recorded for order %s", ErrOrderConflict, orderID)
		}

		if cmd.Success {
			loaded.PaymentStatus = domain.PaymentStatusPaid
		} else {
			loaded.PaymentStatus = domain.PaymentStatusFailed
		}
		loaded.UpdatedAt = now

		if err := s.orders.Update(txCtx, loaded); err != nil {
			return mapOrderRepositoryError(err)
		}
		order = loaded
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if changed {
		s.publishEvent(ctx, OrderEvent{
			Type:          orderEventPaymentRecorded,
			OrderID:       order.ID,
			OrderNumber:   order.Number,
			CurrentStatus: string(order.Status),
			OccurredAt:    now,
			Metadata: map[string]any{
				"paymentStatus": string(order.PaymentStatus),
				"providerRef":   cmd.ProviderRef,
			},
		})
	}

	return order, nil
}

func (s *orderService) DashboardSummary(ctx context.Context, filter SummaryFilter) (DashboardSummary, error) {
	summary, err := s.orders.Summary(ctx, filter)
	if err != nil {
		return DashboardSummary{}, mapOrderRepositoryError(err)
	}
	summary.GeneratedAt = s.now()
	return summary, nil
}

func (s *orderService) ListStale(ctx context.Context, status OrderStatus, cutoff time.Time, limit int) ([]string, error) {
	ids, err := s.orders.ListStale(ctx, status, cutoff, limit)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	return ids, nil
}

func (s *orderService) capabilitiesFor(order Order, now time.Time) OrderCapabilities {
	refundable := order.PaymentStatus == domain.PaymentStatusPaid &&
		slices.Contains(refundableStatuses, order.Status) &&
		s.checkRefundable(order, now) == nil

	return OrderCapabilities{
		CanCancel:              slices.Contains(cancellableStatuses, order.Status),
		CanConfirm:             order.Status == domain.OrderStatusConfirming,
		CanMarkDelivering:      order.Status == domain.OrderStatusConfirmed,
		CanMarkDelivered:       order.Status == domain.OrderStatusDelivering,
		CanComplete:            order.Status == domain.OrderStatusDelivered,
		CanRequestRefund:       refundable,
		CanApproveRefund:       order.Status == domain.OrderStatusRefundRequested,
		CanRejectRefund:        order.Status == domain.OrderStatusRefundRequested,
		CanCancelRefundRequest: order.Status == domain.OrderStatusRefundRequested,
	}
}

func (s *orderService) appendHistory(ctx context.Context, order Order, from, to domain.OrderStatus, actor, note string, now time.Time) error {
	err := s.orders.AppendHistory(ctx, OrderStatusHistory{
		ID:         historyIDPrefix + s.newID(),
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       note,
		CreatedAt:  now,
	})
	if err != nil {
		return mapOrderRepositoryError(err)
	}
	return nil
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DH%06d", seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// stampStatusTimestamp records when a status was first reached. PlacedAt is
// set at creation, not here.
func stampStatusTimestamp(order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusProcessing:
		order.ProcessingAt = &now
	case domain.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case domain.OrderStatusDelivering:
		order.DeliveringAt = &now
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	case domain.OrderStatusCompleted:
		order.CompletedAt = &now
	case domain.OrderStatusRefundRequested:
		order.RefundRequestedAt = &now
	case domain.OrderStatusRefunded:
		order.RefundedAt = &now
	case domain.OrderStatusCanceled:
		if order.CanceledAt == nil {
			order.CanceledAt = &now
		}
	}
}

func transitionMetadata(note string) map[string]any {
	if note == "" {
		return nil
	}
	return map[string]any{"note": note}
}

func valuePtr[T any](v T) *T {
	return &v
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
