package services

import (
	"context"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	OrderItem            = domain.OrderItem
	OrderTotals          = domain.OrderTotals
	OrderStatusHistory   = domain.OrderStatusHistory
	OrderCapabilities    = domain.OrderCapabilities
	ShippingAddress      = domain.ShippingAddress
	PaymentMethod        = domain.PaymentMethod
	PaymentStatus        = domain.PaymentStatus
	ProcessingAnnotation = domain.ProcessingAnnotation
	Voucher              = domain.Voucher
	DiscountType         = domain.DiscountType
	ProductVariant       = domain.ProductVariant
	InventoryLog         = domain.InventoryLog
	ImportNote           = domain.ImportNote
	ImportNoteItem       = domain.ImportNoteItem
	DashboardSummary     = domain.DashboardSummary
	SystemHealthReport   = domain.SystemHealthReport
)

// OrderService owns the order state machine. Every write to Order.Status in
// the system flows through its Transition method.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (OrderDetails, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListHistory(ctx context.Context, orderID string) ([]OrderStatusHistory, error)

	// Transition applies one adjacency-checked status change together with
	// its history record in a single transactional unit.
	Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error)

	Confirm(ctx context.Context, cmd OrderActionCommand) (Order, error)
	MarkDelivering(ctx context.Context, cmd MarkDeliveringCommand) (Order, error)
	MarkDelivered(ctx context.Context, cmd OrderActionCommand) (Order, error)
	Complete(ctx context.Context, cmd OrderActionCommand) (Order, error)
	RequestRefund(ctx context.Context, cmd OrderActionCommand) (Order, error)
	// Cancel applies the cancelable-state guard and flips the order to
	// CANCELED, or to REFUNDING when it was already paid. Inventory
	// restoration around it is the refund orchestrator's job.
	Cancel(ctx context.Context, cmd OrderActionCommand) (Order, error)
	ApproveRefund(ctx context.Context, cmd OrderActionCommand) (Order, error)
	CancelRefundRequest(ctx context.Context, cmd OrderActionCommand) (Order, error)

	// RecordPaymentResult applies a verified gateway callback. A duplicate
	// notification for an already-settled order changes no state and returns
	// ErrOrderConflict so the caller can acknowledge it as already confirmed.
	RecordPaymentResult(ctx context.Context, cmd PaymentResultCommand) (Order, error)

	DashboardSummary(ctx context.Context, filter SummaryFilter) (DashboardSummary, error)
	ListStale(ctx context.Context, status OrderStatus, cutoff time.Time, limit int) ([]string, error)
}

// OrderPipeline runs the asynchronous post-creation checks for one order:
// stock, pricing and voucher validation, then the inventory deduction.
type OrderPipeline interface {
	Process(ctx context.Context, orderID string) error
}

// RefundService orchestrates cancellation and the refund workflow, combining
// status transitions with inventory restoration and gateway refunds.
type RefundService interface {
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (Order, error)
	RejectRefund(ctx context.Context, cmd RejectRefundCommand) (Order, error)
}

// VoucherService evaluates and maintains discount vouchers.
type VoucherService interface {
	GetVoucher(ctx context.Context, code string) (Voucher, error)
	CreateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error)
	UpdateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error)

	// IsValid checks the intrinsic voucher state against now: active flag,
	// validity window and global usage limit.
	IsValid(voucher Voucher, now time.Time) (bool, string)
	// CanUse layers the order-scoped checks on top of IsValid: minimum order
	// value and the per-customer usage allowance.
	CanUse(ctx context.Context, voucher Voucher, customerID string, subtotal int64) (bool, string, error)
	CalculateDiscount(voucher Voucher, subtotal int64, shippingCost int64) int64
	IncrementUsage(ctx context.Context, code string) error
}

// InventoryService fronts the stock ledger. All mutations are atomic across
// their lines and produce write-once audit entries.
type InventoryService interface {
	Deduct(ctx context.Context, cmd StockMutationCommand) ([]InventoryLog, error)
	Restore(ctx context.Context, cmd StockMutationCommand) ([]InventoryLog, error)
	ListLogs(ctx context.Context, variantID string, pager Pagination) (domain.CursorPage[InventoryLog], error)
}

// WarehouseService manages import notes for warehouse receiving. Completing a
// note applies its lines to stock through the inventory ledger.
type WarehouseService interface {
	CreateImportNote(ctx context.Context, cmd CreateImportNoteCommand) (ImportNote, error)
	CompleteImportNote(ctx context.Context, cmd ImportNoteActionCommand) (ImportNote, error)
	CancelImportNote(ctx context.Context, cmd ImportNoteActionCommand) (ImportNote, error)
	GetImportNote(ctx context.Context, noteID string) (ImportNote, error)
	ListImportNotes(ctx context.Context, filter ImportNoteListFilter) (domain.CursorPage[ImportNote], error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// TaskDispatcher schedules asynchronous work on the queue: pipeline runs,
// refund processing and outbound notifications.
type TaskDispatcher interface {
	EnqueueProcessOrder(ctx context.Context, task ProcessOrderTask) error
	EnqueueProcessRefund(ctx context.Context, task ProcessRefundTask) error
	EnqueueNotification(ctx context.Context, task NotificationTask) error
}

// Queue task payloads ---------------------------------------------------------

// Task kinds carried in the queue message attributes.
const (
	TaskKindProcessOrder  = "order.process"
	TaskKindProcessRefund = "order.refund.process"
	TaskKindNotification  = "notification.send"
)

// Notification events emitted by the pipeline and the refund orchestrator.
const (
	NotificationOrderConfirmed  = "order_confirmed"
	NotificationOrderFailed     = "order_failed"
	NotificationStaffNewOrder   = "staff_new_order"
	NotificationRefundCompleted = "refund_completed"
)

// ProcessOrderTask triggers one pipeline run for an order.
type ProcessOrderTask struct {
	OrderID string `json:"orderId"`
	Attempt int    `json:"attempt"`
}

// ProcessRefundTask triggers the refund workflow for an order. StockRestored
// marks refunds scheduled by a paid cancellation, whose inventory was already
// returned before the task was enqueued.
type ProcessRefundTask struct {
	OrderID       string `json:"orderId"`
	Reason        string `json:"reason,omitempty"`
	StockRestored bool   `json:"stockRestored,omitempty"`
	Attempt       int    `json:"attempt"`
}

// NotificationTask requests delivery of one customer or staff notification.
type NotificationTask struct {
	Event   string `json:"event"`
	OrderID string `json:"orderId"`
	Attempt int    `json:"attempt"`
}

// Command and DTO definitions ------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

type SummaryFilter = repositories.SummaryFilter

type ImportNoteListFilter = repositories.ImportNoteListFilter

// OrderDetails pairs an order with its derived action flags.
type OrderDetails struct {
	Order        Order
	Capabilities OrderCapabilities
}

// OrderLineInput selects a variant and quantity at order creation. Snapshot
// fields (name, SKU, price) are read from the live catalog, never supplied by
// the caller.
type OrderLineInput struct {
	VariantID string
	Quantity  int64
}

type CreateOrderCommand struct {
	CustomerID      string // empty for guest orders
	Items           []OrderLineInput
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	VoucherCodes    []string
	ActorID         string
}

type OrderTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	ActorID        string
	Note           string
	ExpectedStatus *OrderStatus
	// PaymentStatus, when set, is written together with the status change in
	// the same transactional unit.
	PaymentStatus *PaymentStatus
}

// OrderActionCommand is the shared shape of the thin business entry points.
type OrderActionCommand struct {
	OrderID        string
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

type MarkDeliveringCommand struct {
	OrderID        string
	ActorID        string
	TrackingNumber string
	Carrier        string
	ExpectedStatus *OrderStatus
}

type PaymentResultCommand struct {
	OrderID     string
	Success     bool
	ProviderRef string
	OccurredAt  time.Time
}

type CancelOrderCommand struct {
	OrderID        string
	ActorID        string
	Reason         string
	ExpectedStatus *OrderStatus
}

type ProcessRefundCommand struct {
	OrderID       string
	ActorID       string
	Reason        string
	StockRestored bool
}

type RejectRefundCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type UpsertVoucherCommand struct {
	Voucher Voucher
	ActorID string
}

// StockMutationCommand covers every line of one logical stock operation.
type StockMutationCommand struct {
	Lines         []repositories.StockLine
	Type          domain.InventoryTransactionType
	TransactionID string
	ActorID       string
	// Once makes the mutation idempotent on the Type/TransactionID pair, so
	// a retried task cannot move the same stock twice.
	Once bool
}

type CreateImportNoteCommand struct {
	Items   []ImportNoteItem
	ActorID string
}

type ImportNoteActionCommand struct {
	NoteID  string
	ActorID string
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
