package services

import (
	"context"
	"testing"

	domain "github.com/lumen-eyewear/api/internal/domain"
)

type pipelineFixture struct {
	repo      *memOrderRepo
	variants  *stubVariantRepo
	vouchers  *stubVoucherService
	inventory *stubInventoryService
	tasks     *stubTasks
	pipeline  OrderPipeline
}

func newPipelineFixture(t *testing.T, orders ...domain.Order) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		repo: newMemOrderRepo(orders...),
		variants: &stubVariantRepo{variants: map[string]domain.ProductVariant{
			"var_frame": {ID: "var_frame", SKU: "FR-01", Name: "Round Frame", Price: 500_000, Active: true, Stock: 10},
		}},
		vouchers:  &stubVoucherService{},
		inventory: &stubInventoryService{},
		tasks:     &stubTasks{},
	}

	state, err := NewOrderService(OrderServiceDeps{
		Orders:      f.repo,
		Variants:    f.variants,
		Counters:    &stubCounterRepo{},
		Vouchers:    f.vouchers,
		Clock:       testClock,
		IDGenerator: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	pipeline, err := NewOrderPipeline(OrderPipelineDeps{
		Orders:    f.repo,
		Variants:  f.variants,
		Vouchers:  f.vouchers,
		Inventory: f.inventory,
		State:     state,
		Tasks:     f.tasks,
		Clock:     testClock,
	})
	if err != nil {
		t.Fatalf("NewOrderPipeline: %v", err)
	}
	f.pipeline = pipeline
	return f
}

func TestPipelineHappyPath(t *testing.T) {
	f := newPipelineFixture(t, pendingOrder("ord_1"))

	if err := f.pipeline.Process(context.Background(), "ord_1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	order := f.repo.mustGet("ord_1")
	if order.Status != domain.OrderStatusConfirming {
		t.Fatalf("status = %s, want CONFIRMING", order.Status)
	}
	if order.ProcessingAt == nil {
		t.Fatalf("processingAt not stamped")
	}
	if order.ProcessingError != nil {
		t.Fatalf("processing error set on success: %+v", order.ProcessingError)
	}

	if len(f.inventory.deducted) != 1 {
		t.Fatalf("deductions = %d, want 1", len(f.inventory.deducted))
	}
	deduction := f.inventory.deducted[0]
	if deduction.Type != domain.InventoryTransactionOrder || deduction.TransactionID != "ord_1" || !deduction.Once {
		t.Fatalf("deduction = %+v", deduction)
	}
	if len(deduction.Lines) != 1 || deduction.Lines[0].VariantID != "var_frame" || deduction.Lines[0].Quantity != 1 {
		t.Fatalf("deduction lines = %+v", deduction.Lines)
	}

	events := f.tasks.notificationEvents()
	if len(events) != 2 || events[0] != NotificationOrderConfirmed || events[1] != NotificationStaffNewOrder {
		t.Fatalf("notifications = %v", events)
	}
}

func TestPipelineRecomputesVoucherDiscount(t *testing.T) {
	seed := pendingOrder("ord_1")
	seed.VoucherCodes = []string{"SUMMER10"}
	f := newPipelineFixture(t, seed)
	f.vouchers.getFn = func(code string) (domain.Voucher, error) { return domain.Voucher{Code: code}, nil }
	f.vouchers.discountFn = func(_ domain.Voucher, _, _ int64) int64 { return 40_000 }

	if err := f.pipeline.Process(context.Background(), "ord_1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	order := f.repo.mustGet("ord_1")
	if order.Totals.Discount != 40_000 {
		t.Fatalf("discount = %d, want 40000", order.Totals.Discount)
	}
	if order.Totals.Total != 500_000+30_000-40_000 {
		t.Fatalf("total = %d", order.Totals.Total)
	}
	if len(f.vouchers.incremented) != 1 || f.vouchers.incremented[0] != "SUMMER10" {
		t.Fatalf("incremented = %v", f.vouchers.incremented)
	}
}

func TestPipelineSkipsNonPendingOrder(t *testing.T) {
	f := newPipelineFixture(t, orderInStatus("ord_1", domain.OrderStatusConfirming))

	if err := f.pipeline.Process(context.Background(), "ord_1"); err != nil {
		t.Fatalf("duplicate delivery returned error: %v", err)
	}
	if got := f.repo.mustGet("ord_1").Status; got != domain.OrderStatusConfirming {
		t.Fatalf("status = %s, want CONFIRMING untouched", got)
	}
	if len(f.inventory.deducted) != 0 {
		t.Fatalf("stock deducted for skipped order")
	}
}

func TestPipelineStockFailure(t *testing.T) {
	f := newPipelineFixture(t, pendingOrder("ord_1"))
	f.variants.variants["var_frame"] = domain.ProductVariant{ID: "var_frame", Price: 500_000, Active: true, Stock: 0}

	if err := f.pipeline.Process(context.Background(), "ord_1"); err != nil {
		t.Fatalf("validation failure must not bubble: %v", err)
	}

	order := f.repo.mustGet("ord_1")
	if order.Status != domain.OrderStatusProcessingFailed {
		t.Fatalf("status = %s, want PROCESSING_FAILED", order.Status)
	}
	if order.ProcessingError == nil {
		t.Fatalf("no processing annotation")
	}
	if order.ProcessingError.Stage != "stock" || order.ProcessingError.Code != domain.ProcessingErrorStockUnavailable {
		t.Fatalf("annotation = %+v", order.ProcessingError)
	}
	if len(f.inventory.deducted) != 0 {
		t.Fatalf("stock deducted for failed order")
	}

	events := f.tasks.notificationEvents()
	if len(events) != 1 || events[0] != NotificationOrderFailed {
		t.Fatalf("notifications = %v", events)
	}
}

func TestPipelinePriceChangeFailure(t *testing.T) {
	f := newPipelineFixture(t, pendingOrder("ord_1"))
	f.variants.variants["var_frame"] = domain.ProductVariant{ID: "var_frame", Price: 550_000, Active: true, Stock: 10}

	if err := f.pipeline.Process(context.Background(), "ord_1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	order := f.repo.mustGet("ord_1")
	if order.Status != domain.OrderStatusProcessingFailed {
		t.Fatalf("status = %s, want PROCESSING_FAILED", order.Status)
	}
	if order.ProcessingError.Code != domain.ProcessingErrorPriceChanged {
		t.Fatalf("annotation code = %s, want PRICE_CHANGED", order.ProcessingError.Code)
	}
}

func TestPipelineVoucherFailure(t *testing.T) {
	seed := pendingOrder("ord_1")
	seed.VoucherCodes = []string{"GHOST"}
	f := newPipelineFixture(t, seed)

	if err := f.pipeline.Process(context.Background(), "ord_1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	order := f.repo.mustGet("ord_1")
	if order.Status != domain.OrderStatusProcessingFailed {
		t.Fatalf("status = %s, want PROCESSING_FAILED", order.Status)
	}
	if order.ProcessingError.Code != domain.ProcessingErrorVoucherInvalid || order.ProcessingError.Stage != "vouchers" {
		t.Fatalf("annotation = %+v", order.ProcessingError)
	}
}

func TestPipelineDeductionFailure(t *testing.T) {
	f := newPipelineFixture(t, pendingOrder("ord_1"))
	f.inventory.deductErr = ErrInventoryInsufficientStock

	if err := f.pipeline.Process(context.Background(), "ord_1"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	order := f.repo.mustGet("ord_1")
	if order.Status != domain.OrderStatusProcessingFailed {
		t.Fatalf("status = %s, want PROCESSING_FAILED", order.Status)
	}
	if order.ProcessingError.Code != domain.ProcessingErrorStockDeductionFailed {
		t.Fatalf("annotation code = %s, want STOCK_DEDUCTION_FAILED", order.ProcessingError.Code)
	}
}

func TestPipelineUnknownOrderIsRetriable(t *testing.T) {
	f := newPipelineFixture(t)

	if err := f.pipeline.Process(context.Background(), "ord_missing"); err == nil {
		t.Fatalf("expected error for unknown order")
	}
}
