package repositories

import (
	"context"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Variants() VariantRepository
	Inventory() InventoryRepository
	Vouchers() VoucherRepository
	ImportNotes() ImportNoteRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates and their append-only status history.
//
// FindByID, Update and AppendHistory participate in the surrounding UnitOfWork
// when one is active, so a status change and its history record commit or fail
// together, serialised against concurrent transitions on the same order.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)

	AppendHistory(ctx context.Context, entry domain.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error)

	// CountVoucherUse reports how many of the customer's orders reference the
	// voucher code, excluding the supplied statuses.
	CountVoucherUse(ctx context.Context, customerID string, code string, exclude []domain.OrderStatus) (int64, error)

	// ListStale returns ids of orders sitting in the given status since before
	// the cutoff, for the expiration and auto-complete sweeps.
	ListStale(ctx context.Context, status domain.OrderStatus, cutoff time.Time, limit int) ([]string, error)

	Summary(ctx context.Context, filter SummaryFilter) (domain.DashboardSummary, error)
}

// VariantRepository reads externally owned catalog variants. Stock on these
// records is mutated exclusively through InventoryRepository.
type VariantRepository interface {
	FindByID(ctx context.Context, variantID string) (domain.ProductVariant, error)
	FindByIDs(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error)
}

// StockLine is one variant/quantity pair inside a ledger mutation.
type StockLine struct {
	VariantID string
	Quantity  int64
}

// StockMutationRequest describes one atomic ledger operation covering every
// line of a logical transaction.
type StockMutationRequest struct {
	Lines         []StockLine
	Type          domain.InventoryTransactionType
	TransactionID string
	Actor         string
	Now           time.Time
	// Once applies the mutation at most once per Type and TransactionID
	// pair: when the ledger already holds a matching entry the request is a
	// no-op. Redelivered cancellation and refund tasks rely on this.
	Once bool
}

// InventoryRepository serialises stock mutations per variant and appends the
// write-once audit log. All lines of a request apply inside one transaction:
// either every variant is mutated and logged, or none is.
type InventoryRepository interface {
	// Deduct decrements stock for every line, re-checking availability under
	// the transaction. Fails with InventoryErrorInsufficientStock when any
	// line cannot be satisfied, leaving all stock untouched.
	Deduct(ctx context.Context, req StockMutationRequest) ([]domain.InventoryLog, error)
	// Restore increments stock for every line. Used by cancellation, refund
	// and warehouse receiving.
	Restore(ctx context.Context, req StockMutationRequest) ([]domain.InventoryLog, error)

	ListLogs(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLog], error)
}

// VoucherRepository maintains voucher definitions and their usage counters.
type VoucherRepository interface {
	Insert(ctx context.Context, voucher domain.Voucher) error
	Update(ctx context.Context, voucher domain.Voucher) error
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	// IncrementUsage atomically adds delta to the stored usage counter. Lost
	// updates under concurrent redemption are not acceptable.
	IncrementUsage(ctx context.Context, code string, delta int64) (domain.Voucher, error)
}

// ImportNoteRepository stores warehouse receiving notes.
type ImportNoteRepository interface {
	Insert(ctx context.Context, note domain.ImportNote) error
	Update(ctx context.Context, note domain.ImportNote) error
	FindByID(ctx context.Context, noteID string) (domain.ImportNote, error)
	List(ctx context.Context, filter ImportNoteListFilter) (domain.CursorPage[domain.ImportNote], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	CustomerID string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type SummaryFilter struct {
	DateRange domain.RangeQuery[time.Time]
}

type ImportNoteListFilter struct {
	Status     []domain.ImportNoteStatus
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
