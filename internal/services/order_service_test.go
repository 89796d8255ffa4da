package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
)

type orderServiceFixture struct {
	repo     *memOrderRepo
	variants *stubVariantRepo
	counters *stubCounterRepo
	vouchers *stubVoucherService
	tasks    *stubTasks
	events   *stubEvents
	svc      OrderService
}

func newOrderServiceFixture(t *testing.T, orders ...domain.Order) *orderServiceFixture {
	t.Helper()

	f := &orderServiceFixture{
		repo: newMemOrderRepo(orders...),
		variants: &stubVariantRepo{variants: map[string]domain.ProductVariant{
			"var_frame": {ID: "var_frame", SKU: "FR-01", Name: "Round Frame", Price: 500_000, Active: true, Stock: 10},
			"var_lens":  {ID: "var_lens", SKU: "LE-01", Name: "Blue Light Lens", Price: 200_000, Active: true, Stock: 25},
		}},
		counters: &stubCounterRepo{},
		vouchers: &stubVoucherService{},
		tasks:    &stubTasks{},
		events:   &stubEvents{},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      f.repo,
		Variants:    f.variants,
		Counters:    f.counters,
		Vouchers:    f.vouchers,
		Tasks:       f.tasks,
		Events:      f.events,
		Clock:       testClock,
		IDGenerator: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func pendingOrder(id string) domain.Order {
	placed := testClock().Add(-time.Hour)
	return domain.Order{
		ID:            id,
		Number:        "DH000042",
		CustomerID:    "cus_1",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCOD,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Totals:        domain.OrderTotals{Subtotal: 500_000, ShippingCost: 30_000, Total: 530_000},
		Items: []domain.OrderItem{
			{VariantID: "var_frame", SKU: "FR-01", ProductName: "Round Frame", UnitPrice: 500_000, Quantity: 1, LineTotal: 500_000},
		},
		PlacedAt:  &placed,
		CreatedAt: placed,
		UpdatedAt: placed,
	}
}

func orderInStatus(id string, status domain.OrderStatus) domain.Order {
	order := pendingOrder(id)
	order.Status = status
	return order
}

func TestCreateOrderSnapshotsCatalogAndEnqueuesPipeline(t *testing.T) {
	f := newOrderServiceFixture(t)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID: "cus_1",
		Items: []OrderLineInput{
			{VariantID: "var_frame", Quantity: 2},
			{VariantID: "var_lens", Quantity: 1},
		},
		ShippingAddress: domain.ShippingAddress{Recipient: "Nguyen Van A", Phone: "0900000001", Province: "Ha Noi"},
		PaymentMethod:   domain.PaymentMethodCOD,
		ActorID:         "cus_1",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s, want PENDING", order.Status)
	}
	if order.Number != "DH000001" {
		t.Fatalf("number = %s, want DH000001", order.Number)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("id = %s, want ord_ prefix", order.ID)
	}
	if got, want := order.Totals.Subtotal, int64(1_200_000); got != want {
		t.Fatalf("subtotal = %d, want %d", got, want)
	}
	if got, want := order.Totals.ShippingCost, int64(30_000); got != want {
		t.Fatalf("shipping = %d, want %d", got, want)
	}
	if got, want := order.Totals.Total, int64(1_230_000); got != want {
		t.Fatalf("total = %d, want %d", got, want)
	}
	if len(order.Items) != 2 || order.Items[0].ProductName != "Round Frame" || order.Items[0].LineTotal != 1_000_000 {
		t.Fatalf("unexpected item snapshot: %+v", order.Items)
	}
	if order.PlacedAt == nil || !order.PlacedAt.Equal(testClock()) {
		t.Fatalf("placedAt = %v, want %v", order.PlacedAt, testClock())
	}

	history := f.repo.history[order.ID]
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].FromStatus != "" || history[0].ToStatus != domain.OrderStatusPending {
		t.Fatalf("history transition = %s -> %s", history[0].FromStatus, history[0].ToStatus)
	}

	if len(f.tasks.processed) != 1 || f.tasks.processed[0].OrderID != order.ID {
		t.Fatalf("process tasks = %+v, want one for %s", f.tasks.processed, order.ID)
	}
	if len(f.events.published) != 1 || f.events.published[0].Type != "order.created" {
		t.Fatalf("events = %+v, want order.created", f.events.published)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newOrderServiceFixture(t)
	address := domain.ShippingAddress{Recipient: "Nguyen Van A", Phone: "0900000001"}

	cases := []struct {
		name string
		cmd  CreateOrderCommand
	}{
		{"no items", CreateOrderCommand{ShippingAddress: address, PaymentMethod: domain.PaymentMethodCOD}},
		{"blank variant", CreateOrderCommand{
			Items:           []OrderLineInput{{VariantID: "  ", Quantity: 1}},
			ShippingAddress: address,
			PaymentMethod:   domain.PaymentMethodCOD,
		}},
		{"zero quantity", CreateOrderCommand{
			Items:           []OrderLineInput{{VariantID: "var_frame", Quantity: 0}},
			ShippingAddress: address,
			PaymentMethod:   domain.PaymentMethodCOD,
		}},
		{"missing recipient", CreateOrderCommand{
			Items:           []OrderLineInput{{VariantID: "var_frame", Quantity: 1}},
			ShippingAddress: domain.ShippingAddress{Phone: "0900000001"},
			PaymentMethod:   domain.PaymentMethodCOD,
		}},
		{"unknown payment method", CreateOrderCommand{
			Items:           []OrderLineInput{{VariantID: "var_frame", Quantity: 1}},
			ShippingAddress: address,
			PaymentMethod:   domain.PaymentMethod("wire"),
		}},
		{"unknown variant", CreateOrderCommand{
			Items:           []OrderLineInput{{VariantID: "var_ghost", Quantity: 1}},
			ShippingAddress: address,
			PaymentMethod:   domain.PaymentMethodCOD,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateOrder(context.Background(), tc.cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("err = %v, want ErrOrderInvalidInput", err)
			}
		})
	}

	if len(f.repo.orders) != 0 {
		t.Fatalf("orders persisted despite validation failures: %d", len(f.repo.orders))
	}
}

func TestCreateOrderRejectsInactiveVariant(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.variants.variants["var_frame"] = domain.ProductVariant{ID: "var_frame", Price: 500_000, Active: false}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items:           []OrderLineInput{{VariantID: "var_frame", Quantity: 1}},
		ShippingAddress: domain.ShippingAddress{Recipient: "A", Phone: "0900000001"},
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("err = %v, want ErrOrderInvalidInput", err)
	}
}

func TestCreateOrderAppliesVoucherDiscount(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.vouchers.getFn = func(code string) (domain.Voucher, error) {
		if code != "SUMMER10" {
			t.Fatalf("voucher lookup code = %s", code)
		}
		return domain.Voucher{Code: code}, nil
	}
	f.vouchers.discountFn = func(_ domain.Voucher, _, _ int64) int64 { return 120_000 }

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:      "cus_1",
		Items:           []OrderLineInput{{VariantID: "var_frame", Quantity: 1}},
		ShippingAddress: domain.ShippingAddress{Recipient: "A", Phone: "0900000001"},
		PaymentMethod:   domain.PaymentMethodCOD,
		VoucherCodes:    []string{"summer10"},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Totals.Discount != 120_000 {
		t.Fatalf("discount = %d, want 120000", order.Totals.Discount)
	}
	if order.Totals.Total != 500_000+30_000-120_000 {
		t.Fatalf("total = %d", order.Totals.Total)
	}
	if len(order.VoucherCodes) != 1 || order.VoucherCodes[0] != "SUMMER10" {
		t.Fatalf("voucher codes = %v, want [SUMMER10]", order.VoucherCodes)
	}
}

func TestCreateOrderClampsDiscountToOrderValue(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.vouchers.getFn = func(code string) (domain.Voucher, error) { return domain.Voucher{Code: code}, nil }
	f.vouchers.discountFn = func(_ domain.Voucher, _, _ int64) int64 { return 9_000_000 }

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items:           []OrderLineInput{{VariantID: "var_frame", Quantity: 1}},
		ShippingAddress: domain.ShippingAddress{Recipient: "A", Phone: "0900000001"},
		PaymentMethod:   domain.PaymentMethodGateway,
		VoucherCodes:    []string{"BIG"},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Totals.Discount != 530_000 || order.Totals.Total != 0 {
		t.Fatalf("totals = %+v, want discount clamped to 530000", order.Totals)
	}
}

func TestCreateOrderRejectsUnusableVoucher(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.vouchers.getFn = func(code string) (domain.Voucher, error) { return domain.Voucher{Code: code}, nil }
	f.vouchers.canUseFn = func(_ domain.Voucher, _ string, _ int64) (bool, string, error) {
		return false, "minimum order value not met", nil
	}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Items:           []OrderLineInput{{VariantID: "var_frame", Quantity: 1}},
		ShippingAddress: domain.ShippingAddress{Recipient: "A", Phone: "0900000001"},
		PaymentMethod:   domain.PaymentMethodCOD,
		VoucherCodes:    []string{"LOW"},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("err = %v, want ErrOrderInvalidInput", err)
	}
}

func TestTransitionRejectsNonAdjacentStatus(t *testing.T) {
	f := newOrderServiceFixture(t, pendingOrder("ord_1"))

	_, err := f.svc.Confirm(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "staff_1"})
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("err = %v, want ErrOrderInvalidTransition", err)
	}
	if f.repo.updates != 0 {
		t.Fatalf("order updated despite rejected transition")
	}
	if len(f.repo.history["ord_1"]) != 0 {
		t.Fatalf("history written despite rejected transition")
	}
	if got := f.repo.mustGet("ord_1").Status; got != domain.OrderStatusPending {
		t.Fatalf("status = %s, want PENDING untouched", got)
	}
}

func TestTransitionExpectedStatusConflict(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusConfirming))

	_, err := f.svc.Transition(context.Background(), OrderTransitionCommand{
		OrderID:        "ord_1",
		TargetStatus:   domain.OrderStatusConfirmed,
		ExpectedStatus: valuePtr(domain.OrderStatusPending),
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("err = %v, want ErrOrderConflict", err)
	}
	if f.repo.updates != 0 {
		t.Fatalf("order updated despite conflict")
	}
}

func TestConfirmStampsTimestampAndHistory(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusConfirming))

	order, err := f.svc.Confirm(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "staff_1", Reason: "stock checked"})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", order.Status)
	}
	if order.ConfirmedAt == nil || !order.ConfirmedAt.Equal(testClock()) {
		t.Fatalf("confirmedAt = %v", order.ConfirmedAt)
	}

	history := f.repo.history["ord_1"]
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	entry := history[0]
	if entry.FromStatus != domain.OrderStatusConfirming || entry.ToStatus != domain.OrderStatusConfirmed {
		t.Fatalf("history = %s -> %s", entry.FromStatus, entry.ToStatus)
	}
	if entry.Actor != "staff_1" || entry.Note != "stock checked" {
		t.Fatalf("history actor/note = %q/%q", entry.Actor, entry.Note)
	}

	if len(f.events.published) != 1 {
		t.Fatalf("events = %d, want 1", len(f.events.published))
	}
	event := f.events.published[0]
	if event.Type != "order.status.changed" || event.PreviousStatus != "CONFIRMING" || event.CurrentStatus != "CONFIRMED" {
		t.Fatalf("event = %+v", event)
	}
}

func TestMarkDelivering(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusConfirmed))

	if _, err := f.svc.MarkDelivering(context.Background(), MarkDeliveringCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("missing tracking err = %v, want ErrOrderInvalidInput", err)
	}

	order, err := f.svc.MarkDelivering(context.Background(), MarkDeliveringCommand{
		OrderID:        "ord_1",
		ActorID:        "staff_1",
		TrackingNumber: "GHN123456",
		Carrier:        "ghn",
	})
	if err != nil {
		t.Fatalf("MarkDelivering: %v", err)
	}
	if order.Status != domain.OrderStatusDelivering {
		t.Fatalf("status = %s, want DELIVERING", order.Status)
	}
	if order.TrackingNumber != "GHN123456" || order.Carrier != "ghn" {
		t.Fatalf("tracking = %q/%q", order.TrackingNumber, order.Carrier)
	}
	if order.DeliveringAt == nil {
		t.Fatalf("deliveringAt not stamped")
	}
}

func TestCancelUnpaidOrder(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusConfirmed))

	order, err := f.svc.Cancel(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "cus_1", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("status = %s, want CANCELED", order.Status)
	}
	if order.CancelReason != "changed my mind" {
		t.Fatalf("cancel reason = %q", order.CancelReason)
	}
	if order.CanceledAt == nil {
		t.Fatalf("canceledAt not stamped")
	}
}

func TestCancelPaidOrderParksInRefunding(t *testing.T) {
	seed := orderInStatus("ord_1", domain.OrderStatusConfirmed)
	seed.PaymentStatus = domain.PaymentStatusPaid
	f := newOrderServiceFixture(t, seed)

	order, err := f.svc.Cancel(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "cus_1"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.Status != domain.OrderStatusRefunding {
		t.Fatalf("status = %s, want REFUNDING", order.Status)
	}
}

func TestCancelRejectedAfterDelivery(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusDelivered))

	if _, err := f.svc.Cancel(context.Background(), OrderActionCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("err = %v, want ErrOrderInvalidTransition", err)
	}
}

func TestRequestRefundInsideWindow(t *testing.T) {
	seed := orderInStatus("ord_1", domain.OrderStatusDelivered)
	seed.PaymentStatus = domain.PaymentStatusPaid
	delivered := testClock().Add(-3 * 24 * time.Hour)
	seed.DeliveredAt = &delivered
	f := newOrderServiceFixture(t, seed)

	order, err := f.svc.RequestRefund(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "cus_1", Reason: "scratched lens"})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if order.Status != domain.OrderStatusRefundRequested {
		t.Fatalf("status = %s, want REFUND_REQUESTED", order.Status)
	}
	if order.RefundRequestedAt == nil {
		t.Fatalf("refundRequestedAt not stamped")
	}
}

func TestRequestRefundWindowClosed(t *testing.T) {
	seed := orderInStatus("ord_1", domain.OrderStatusDelivered)
	seed.PaymentStatus = domain.PaymentStatusPaid
	delivered := testClock().Add(-8 * 24 * time.Hour)
	seed.DeliveredAt = &delivered
	f := newOrderServiceFixture(t, seed)

	_, err := f.svc.RequestRefund(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "cus_1"})
	if !errors.Is(err, ErrOrderRefundWindowClosed) {
		t.Fatalf("err = %v, want ErrOrderRefundWindowClosed", err)
	}
	if got := f.repo.mustGet("ord_1").Status; got != domain.OrderStatusDelivered {
		t.Fatalf("status = %s, want DELIVERED untouched", got)
	}
}

func TestRequestRefundRequiresPayment(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusDelivered))

	if _, err := f.svc.RequestRefund(context.Background(), OrderActionCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("err = %v, want ErrOrderInvalidTransition", err)
	}
}

func TestApproveRefundEnqueuesProcessing(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusRefundRequested))

	order, err := f.svc.ApproveRefund(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "staff_1", Reason: "approved"})
	if err != nil {
		t.Fatalf("ApproveRefund: %v", err)
	}
	if order.Status != domain.OrderStatusRefunding {
		t.Fatalf("status = %s, want REFUNDING", order.Status)
	}
	if len(f.tasks.refunds) != 1 || f.tasks.refunds[0].OrderID != "ord_1" {
		t.Fatalf("refund tasks = %+v", f.tasks.refunds)
	}
}

func TestApproveRefundRequiresOpenRequest(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusDelivered))

	if _, err := f.svc.ApproveRefund(context.Background(), OrderActionCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("err = %v, want ErrOrderConflict", err)
	}
	if len(f.tasks.refunds) != 0 {
		t.Fatalf("refund task enqueued despite rejection")
	}
}

func TestCancelRefundRequestReturnsToDelivered(t *testing.T) {
	f := newOrderServiceFixture(t, orderInStatus("ord_1", domain.OrderStatusRefundRequested))

	order, err := f.svc.CancelRefundRequest(context.Background(), OrderActionCommand{OrderID: "ord_1", ActorID: "cus_1"})
	if err != nil {
		t.Fatalf("CancelRefundRequest: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("status = %s, want DELIVERED", order.Status)
	}
}

func TestRecordPaymentResult(t *testing.T) {
	f := newOrderServiceFixture(t, pendingOrder("ord_1"))

	order, err := f.svc.RecordPaymentResult(context.Background(), PaymentResultCommand{
		OrderID:     "ord_1",
		Success:     true,
		ProviderRef: "14400996",
	})
	if err != nil {
		t.Fatalf("RecordPaymentResult: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", order.PaymentStatus)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status changed by payment recording: %s", order.Status)
	}

	if len(f.events.published) != 1 {
		t.Fatalf("events = %d, want 1", len(f.events.published))
	}
	event := f.events.published[0]
	if event.Type != "order.payment.recorded" || event.Metadata["providerRef"] != "14400996" {
		t.Fatalf("event = %+v", event)
	}
}

func TestRecordPaymentResultDuplicateReturnsConflict(t *testing.T) {
	seed := pendingOrder("ord_1")
	seed.PaymentStatus = domain.PaymentStatusPaid
	f := newOrderServiceFixture(t, seed)

	_, err := f.svc.RecordPaymentResult(context.Background(), PaymentResultCommand{OrderID: "ord_1", Success: true})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("err = %v, want ErrOrderConflict", err)
	}
	if f.repo.updates != 0 {
		t.Fatalf("duplicate notification caused %d updates", f.repo.updates)
	}
	if len(f.events.published) != 0 {
		t.Fatalf("duplicate notification published %d events", len(f.events.published))
	}
}

func TestRecordPaymentFailure(t *testing.T) {
	f := newOrderServiceFixture(t, pendingOrder("ord_1"))

	order, err := f.svc.RecordPaymentResult(context.Background(), PaymentResultCommand{OrderID: "ord_1", Success: false})
	if err != nil {
		t.Fatalf("RecordPaymentResult: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("payment status = %s, want failed", order.PaymentStatus)
	}
}

func TestGetOrderCapabilities(t *testing.T) {
	delivered := testClock().Add(-24 * time.Hour)

	cases := []struct {
		name string
		seed func() domain.Order
		want domain.OrderCapabilities
	}{
		{
			name: "confirming",
			seed: func() domain.Order { return orderInStatus("ord_1", domain.OrderStatusConfirming) },
			want: domain.OrderCapabilities{CanCancel: true, CanConfirm: true},
		},
		{
			name: "delivered and paid within window",
			seed: func() domain.Order {
				o := orderInStatus("ord_1", domain.OrderStatusDelivered)
				o.PaymentStatus = domain.PaymentStatusPaid
				o.DeliveredAt = &delivered
				return o
			},
			want: domain.OrderCapabilities{CanComplete: true, CanRequestRefund: true},
		},
		{
			name: "delivered unpaid",
			seed: func() domain.Order { return orderInStatus("ord_1", domain.OrderStatusDelivered) },
			want: domain.OrderCapabilities{CanComplete: true},
		},
		{
			name: "refund requested",
			seed: func() domain.Order { return orderInStatus("ord_1", domain.OrderStatusRefundRequested) },
			want: domain.OrderCapabilities{CanApproveRefund: true, CanRejectRefund: true, CanCancelRefundRequest: true},
		},
		{
			name: "canceled is inert",
			seed: func() domain.Order { return orderInStatus("ord_1", domain.OrderStatusCanceled) },
			want: domain.OrderCapabilities{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderServiceFixture(t, tc.seed())
			details, err := f.svc.GetOrder(context.Background(), "ord_1")
			if err != nil {
				t.Fatalf("GetOrder: %v", err)
			}
			if details.Capabilities != tc.want {
				t.Fatalf("capabilities = %+v, want %+v", details.Capabilities, tc.want)
			}
		})
	}
}

func TestGetOrderNotFound(t *testing.T) {
	f := newOrderServiceFixture(t)

	if _, err := f.svc.GetOrder(context.Background(), "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}
