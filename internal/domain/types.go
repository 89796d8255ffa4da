package domain

import "time"

// OrderStatus captures the lifecycle state of an order. Terminal states are
// OrderStatusRefunded and OrderStatusCanceled.
type OrderStatus string

const (
	// OrderStatusPending is the initial state assigned at creation, before the
	// processing pipeline has run.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing marks an order currently held by the pipeline.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusProcessingSuccess marks an order whose stock, pricing and
	// voucher checks all passed and whose inventory has been deducted.
	OrderStatusProcessingSuccess OrderStatus = "PROCESSING_SUCCESS"
	// OrderStatusProcessingFailed marks an order rejected by the pipeline.
	OrderStatusProcessingFailed OrderStatus = "PROCESSING_FAILED"
	// OrderStatusConfirming awaits staff confirmation.
	OrderStatusConfirming OrderStatus = "CONFIRMING"
	// OrderStatusConfirmed has been accepted by staff.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusDelivering is in transit with a carrier.
	OrderStatusDelivering OrderStatus = "DELIVERING"
	// OrderStatusDelivered has reached the customer.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCompleted is closed without a refund claim.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusRefundRequested has an open refund claim awaiting review.
	OrderStatusRefundRequested OrderStatus = "REFUND_REQUESTED"
	// OrderStatusRefunding has an approved refund in flight.
	OrderStatusRefunding OrderStatus = "REFUNDING"
	// OrderStatusRefunded is terminal; money and stock have been returned.
	OrderStatusRefunded OrderStatus = "REFUNDED"
	// OrderStatusCanceled is terminal.
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// PaymentStatus tracks the money axis independently of the order status.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod identifies how the customer intends to pay.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodGateway is a redirect to the hosted payment page.
	PaymentMethodGateway PaymentMethod = "gateway"
)

// OrderTotals aggregates the monetary fields of an order. Amounts are in the
// smallest currency unit (whole VND). Invariant: Total == Subtotal +
// ShippingCost - Discount.
type OrderTotals struct {
	Subtotal     int64
	ShippingCost int64
	Discount     int64
	Total        int64
}

// Consistent reports whether the totals satisfy the order total invariant.
func (t OrderTotals) Consistent() bool {
	return t.Total == t.Subtotal+t.ShippingCost-t.Discount
}

// OrderItem is an immutable snapshot of a purchasable variant taken at order
// creation. It never re-reads the live catalog price.
type OrderItem struct {
	VariantID   string
	SKU         string
	ProductName string
	Attributes  map[string]string
	UnitPrice   int64
	Quantity    int64
	LineTotal   int64
}

// ShippingAddress is the single delivery address owned by an order.
type ShippingAddress struct {
	Recipient string
	Phone     string
	Street    string
	Ward      string
	District  string
	Province  string
}

// ProcessingErrorCode classifies why the processing pipeline rejected an order.
type ProcessingErrorCode string

const (
	ProcessingErrorStockUnavailable     ProcessingErrorCode = "STOCK_UNAVAILABLE"
	ProcessingErrorPriceChanged         ProcessingErrorCode = "PRICE_CHANGED"
	ProcessingErrorVoucherInvalid       ProcessingErrorCode = "VOUCHER_INVALID"
	ProcessingErrorStockDeductionFailed ProcessingErrorCode = "STOCK_DEDUCTION_FAILED"
)

// ProcessingAnnotation records the structured outcome of a failed pipeline
// attempt. It replaces free-form processing notes so invalid payloads cannot
// be stored.
type ProcessingAnnotation struct {
	Stage      string
	Code       ProcessingErrorCode
	Message    string
	OccurredAt time.Time
}

// Order is the aggregate root of the lifecycle engine.
type Order struct {
	ID            string
	Number        string
	CustomerID    string // empty for guest orders
	Status        OrderStatus
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Totals        OrderTotals

	Items           []OrderItem
	ShippingAddress *ShippingAddress
	VoucherCodes    []string

	ProcessingError *ProcessingAnnotation
	CancelReason    string

	TrackingNumber string
	Carrier        string

	PlacedAt          *time.Time
	ProcessingAt      *time.Time
	ConfirmedAt       *time.Time
	DeliveringAt      *time.Time
	DeliveredAt       *time.Time
	CompletedAt       *time.Time
	RefundRequestedAt *time.Time
	RefundedAt        *time.Time
	CanceledAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatusHistory is one append-only audit record per committed transition.
// Entries are never updated or deleted.
type OrderStatusHistory struct {
	ID         string
	OrderID    string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Actor      string // empty means the system acted
	Note       string
	CreatedAt  time.Time
}

// OrderCapabilities are the action flags derived from the current order state.
// They are computed on read and never stored.
type OrderCapabilities struct {
	CanCancel              bool
	CanConfirm             bool
	CanMarkDelivering      bool
	CanMarkDelivered       bool
	CanComplete            bool
	CanRequestRefund       bool
	CanApproveRefund       bool
	CanRejectRefund        bool
	CanCancelRefundRequest bool
}

// DiscountType enumerates the voucher discount semantics.
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "PERCENTAGE"
	DiscountTypeFixedAmount  DiscountType = "FIXED_AMOUNT"
	DiscountTypeFreeShipping DiscountType = "FREE_SHIPPING"
)

// Voucher is an independently owned discount definition. Vouchers are never
// deleted; historical orders keep referencing them by code.
type Voucher struct {
	ID                string
	Code              string // stored upper-cased
	DiscountType      DiscountType
	DiscountValue     int64 // percent points for PERCENTAGE, amount otherwise
	MaxDiscountAmount *int64
	MinOrderValue     int64
	UsageLimit        *int64
	UsagePerUser      int64
	TimesUsed         int64
	ValidFrom         time.Time
	ValidUntil        time.Time
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProductVariant is the externally owned catalog record. The engine mutates
// exactly one field on it: Stock. Everything else is a read-only input.
type ProductVariant struct {
	ID         string
	SKU        string
	Name       string
	Attributes map[string]string
	Price      int64
	Active     bool
	Stock      int64
	UpdatedAt  time.Time
}

// InventoryTransactionType classifies an inventory log entry.
type InventoryTransactionType string

const (
	InventoryTransactionImport     InventoryTransactionType = "IMPORT"
	InventoryTransactionOrder      InventoryTransactionType = "ORDER"
	InventoryTransactionRefund     InventoryTransactionType = "REFUND"
	InventoryTransactionAdjustment InventoryTransactionType = "ADJUSTMENT"
)

// InventoryLog is one write-once audit entry per stock mutation. Invariant:
// StockAfter == StockBefore + QuantityChange, and replaying a variant's
// entries in creation order reproduces its current stock.
type InventoryLog struct {
	ID             string
	VariantID      string
	QuantityChange int64 // signed
	Type           InventoryTransactionType
	TransactionID  string
	StockBefore    int64
	StockAfter     int64
	Actor          string
	CreatedAt      time.Time
}

// ImportNoteStatus is the lifecycle of a warehouse receiving note.
type ImportNoteStatus string

const (
	ImportNoteStatusDraft     ImportNoteStatus = "DRAFT"
	ImportNoteStatusCompleted ImportNoteStatus = "COMPLETED"
	ImportNoteStatusCancelled ImportNoteStatus = "CANCELLED"
)

// ImportNoteItem is one received line on an import note.
type ImportNoteItem struct {
	VariantID string
	Quantity  int64
	UnitCost  int64
}

// ImportNote records a warehouse receiving batch. Completing a note applies
// its lines to stock through the inventory ledger in one audit batch.
type ImportNote struct {
	ID          string
	Number      string
	Status      ImportNoteStatus
	Items       []ImportNoteItem
	CreatedBy   string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DashboardSummary aggregates order counts and revenue for the admin surface.
type DashboardSummary struct {
	CountsByStatus map[OrderStatus]int64
	Revenue        int64 // sum of totals across paid orders
	GeneratedAt    time.Time
}

// Pagination carries cursor-based pagination inputs.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery represents half-open range filters on an ordered field.
type RangeQuery[T any] struct {
	From *T
	To   *T
}
