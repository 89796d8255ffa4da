package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/repositories"
)

func testClock() time.Time {
	return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%08d", n)
	}
}

type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

// memOrderRepo is an in-memory OrderRepository used to drive the state
// machine through real reads and writes.
type memOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	history map[string][]domain.OrderStatusHistory
	updates int

	insertErr       error
	updateErr       error
	countVoucherFn  func(customerID, code string, exclude []domain.OrderStatus) (int64, error)
	listStaleFn     func(status domain.OrderStatus, cutoff time.Time, limit int) ([]string, error)
	summaryFn       func(filter repositories.SummaryFilter) (domain.DashboardSummary, error)
	listFn          func(filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	appendHistoryFn func(entry domain.OrderStatusHistory) error
}

func newMemOrderRepo(orders ...domain.Order) *memOrderRepo {
	repo := &memOrderRepo{
		orders:  make(map[string]domain.Order),
		history: make(map[string][]domain.OrderStatusHistory),
	}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return &repoError{msg: "order exists", conflict: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return &repoError{msg: "order missing", notFound: true}
	}
	r.orders[order.ID] = order
	r.updates++
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, &repoError{msg: "order missing", notFound: true}
	}
	return order, nil
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r.listFn != nil {
		return r.listFn(filter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	page := domain.CursorPage[domain.Order]{}
	for _, order := range r.orders {
		page.Items = append(page.Items, order)
	}
	return page, nil
}

func (r *memOrderRepo) AppendHistory(_ context.Context, entry domain.OrderStatusHistory) error {
	if r.appendHistoryFn != nil {
		return r.appendHistoryFn(entry)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[entry.OrderID] = append(r.history[entry.OrderID], entry)
	return nil
}

func (r *memOrderRepo) ListHistory(_ context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OrderStatusHistory(nil), r.history[orderID]...), nil
}

func (r *memOrderRepo) CountVoucherUse(_ context.Context, customerID string, code string, exclude []domain.OrderStatus) (int64, error) {
	if r.countVoucherFn != nil {
		return r.countVoucherFn(customerID, code, exclude)
	}
	return 0, nil
}

func (r *memOrderRepo) ListStale(_ context.Context, status domain.OrderStatus, cutoff time.Time, limit int) ([]string, error) {
	if r.listStaleFn != nil {
		return r.listStaleFn(status, cutoff, limit)
	}
	return nil, nil
}

func (r *memOrderRepo) Summary(_ context.Context, filter repositories.SummaryFilter) (domain.DashboardSummary, error) {
	if r.summaryFn != nil {
		return r.summaryFn(filter)
	}
	return domain.DashboardSummary{}, nil
}

func (r *memOrderRepo) mustGet(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type stubVariantRepo struct {
	variants map[string]domain.ProductVariant
}

func (r *stubVariantRepo) FindByID(_ context.Context, variantID string) (domain.ProductVariant, error) {
	variant, ok := r.variants[variantID]
	if !ok {
		return domain.ProductVariant{}, &repoError{msg: "variant missing", notFound: true}
	}
	return variant, nil
}

func (r *stubVariantRepo) FindByIDs(_ context.Context, variantIDs []string) (map[string]domain.ProductVariant, error) {
	found := make(map[string]domain.ProductVariant)
	for _, id := range variantIDs {
		if variant, ok := r.variants[id]; ok {
			found[id] = variant
		}
	}
	return found, nil
}

type stubCounterRepo struct {
	value int64
	err   error
}

func (r *stubCounterRepo) Next(_ context.Context, _ string, step int64) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.value += step
	return r.value, nil
}

func (r *stubCounterRepo) Configure(_ context.Context, _ string, _ repositories.CounterConfig) error {
	return nil
}

type stubVoucherRepo struct {
	vouchers    map[string]domain.Voucher
	insertFn    func(voucher domain.Voucher) error
	updateFn    func(voucher domain.Voucher) error
	incremented []string
}

func (r *stubVoucherRepo) Insert(_ context.Context, voucher domain.Voucher) error {
	if r.insertFn != nil {
		return r.insertFn(voucher)
	}
	if r.vouchers == nil {
		r.vouchers = make(map[string]domain.Voucher)
	}
	if _, ok := r.vouchers[voucher.Code]; ok {
		return &repoError{msg: "voucher exists", conflict: true}
	}
	r.vouchers[voucher.Code] = voucher
	return nil
}

func (r *stubVoucherRepo) Update(_ context.Context, voucher domain.Voucher) error {
	if r.updateFn != nil {
		return r.updateFn(voucher)
	}
	if _, ok := r.vouchers[voucher.Code]; !ok {
		return &repoError{msg: "voucher missing", notFound: true}
	}
	r.vouchers[voucher.Code] = voucher
	return nil
}

func (r *stubVoucherRepo) FindByCode(_ context.Context, code string) (domain.Voucher, error) {
	voucher, ok := r.vouchers[code]
	if !ok {
		return domain.Voucher{}, &repoError{msg: "voucher missing", notFound: true}
	}
	return voucher, nil
}

func (r *stubVoucherRepo) IncrementUsage(_ context.Context, code string, delta int64) (domain.Voucher, error) {
	voucher, ok := r.vouchers[code]
	if !ok {
		return domain.Voucher{}, &repoError{msg: "voucher missing", notFound: true}
	}
	voucher.TimesUsed += delta
	r.vouchers[code] = voucher
	r.incremented = append(r.incremented, code)
	return voucher, nil
}

// stubVoucherService satisfies VoucherService for order and pipeline tests
// that do not exercise voucher logic itself.
type stubVoucherService struct {
	getFn       func(code string) (domain.Voucher, error)
	canUseFn    func(voucher domain.Voucher, customerID string, subtotal int64) (bool, string, error)
	discountFn  func(voucher domain.Voucher, subtotal, shippingCost int64) int64
	incremented []string
	incrementFn func(code string) error
}

func (s *stubVoucherService) GetVoucher(_ context.Context, code string) (domain.Voucher, error) {
	if s.getFn != nil {
		return s.getFn(code)
	}
	return domain.Voucher{}, ErrVoucherNotFound
}

func (s *stubVoucherService) CreateVoucher(_ context.Context, _ UpsertVoucherCommand) (domain.Voucher, error) {
	return domain.Voucher{}, nil
}

func (s *stubVoucherService) UpdateVoucher(_ context.Context, _ UpsertVoucherCommand) (domain.Voucher, error) {
	return domain.Voucher{}, nil
}

func (s *stubVoucherService) IsValid(_ domain.Voucher, _ time.Time) (bool, string) {
	return true, ""
}

func (s *stubVoucherService) CanUse(_ context.Context, voucher domain.Voucher, customerID string, subtotal int64) (bool, string, error) {
	if s.canUseFn != nil {
		return s.canUseFn(voucher, customerID, subtotal)
	}
	return true, "", nil
}

func (s *stubVoucherService) CalculateDiscount(voucher domain.Voucher, subtotal int64, shippingCost int64) int64 {
	if s.discountFn != nil {
		return s.discountFn(voucher, subtotal, shippingCost)
	}
	return 0
}

func (s *stubVoucherService) IncrementUsage(_ context.Context, code string) error {
	if s.incrementFn != nil {
		return s.incrementFn(code)
	}
	s.incremented = append(s.incremented, code)
	return nil
}

type stubTasks struct {
	processed     []ProcessOrderTask
	refunds       []ProcessRefundTask
	notifications []NotificationTask

	processErr error
	refundErr  error
	notifyErr  error
}

func (t *stubTasks) EnqueueProcessOrder(_ context.Context, task ProcessOrderTask) error {
	if t.processErr != nil {
		return t.processErr
	}
	t.processed = append(t.processed, task)
	return nil
}

func (t *stubTasks) EnqueueProcessRefund(_ context.Context, task ProcessRefundTask) error {
	if t.refundErr != nil {
		return t.refundErr
	}
	t.refunds = append(t.refunds, task)
	return nil
}

func (t *stubTasks) EnqueueNotification(_ context.Context, task NotificationTask) error {
	if t.notifyErr != nil {
		return t.notifyErr
	}
	t.notifications = append(t.notifications, task)
	return nil
}

func (t *stubTasks) notificationEvents() []string {
	events := make([]string, 0, len(t.notifications))
	for _, n := range t.notifications {
		events = append(events, n.Event)
	}
	return events
}

type stubEvents struct {
	published []OrderEvent
	err       error
}

func (e *stubEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	if e.err != nil {
		return e.err
	}
	e.published = append(e.published, event)
	return nil
}

// stubInventoryService records effective ledger mutations for orchestrator
// tests. Commands flagged Once are deduplicated on their type and transaction
// id, mirroring the ledger's replay guard; deducted and restored hold only
// the mutations that actually moved stock.
type stubInventoryService struct {
	deducted     []StockMutationCommand
	restored     []StockMutationCommand
	deductCalls  int
	restoreCalls int
	applied      map[string]struct{}
	deductErr    error
	restoreEr    error
}

func (s *stubInventoryService) Deduct(_ context.Context, cmd StockMutationCommand) ([]domain.InventoryLog, error) {
	s.deductCalls++
	if s.deductErr != nil {
		return nil, s.deductErr
	}
	if s.replayed("deduct", cmd) {
		return nil, nil
	}
	s.deducted = append(s.deducted, cmd)
	return nil, nil
}

func (s *stubInventoryService) Restore(_ context.Context, cmd StockMutationCommand) ([]domain.InventoryLog, error) {
	s.restoreCalls++
	if s.restoreEr != nil {
		return nil, s.restoreEr
	}
	if s.replayed("restore", cmd) {
		return nil, nil
	}
	s.restored = append(s.restored, cmd)
	return nil, nil
}

func (s *stubInventoryService) replayed(direction string, cmd StockMutationCommand) bool {
	if !cmd.Once {
		return false
	}
	key := direction + "|" + string(cmd.Type) + "|" + cmd.TransactionID
	if s.applied == nil {
		s.applied = make(map[string]struct{})
	}
	if _, ok := s.applied[key]; ok {
		return true
	}
	s.applied[key] = struct{}{}
	return false
}

func (s *stubInventoryService) ListLogs(_ context.Context, _ string, _ domain.Pagination) (domain.CursorPage[domain.InventoryLog], error) {
	return domain.CursorPage[domain.InventoryLog]{}, nil
}

type stubInventoryRepo struct {
	deductFn  func(req repositories.StockMutationRequest) ([]domain.InventoryLog, error)
	restoreFn func(req repositories.StockMutationRequest) ([]domain.InventoryLog, error)
	listFn    func(variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLog], error)
}

func (r *stubInventoryRepo) Deduct(_ context.Context, req repositories.StockMutationRequest) ([]domain.InventoryLog, error) {
	if r.deductFn != nil {
		return r.deductFn(req)
	}
	return nil, nil
}

func (r *stubInventoryRepo) Restore(_ context.Context, req repositories.StockMutationRequest) ([]domain.InventoryLog, error) {
	if r.restoreFn != nil {
		return r.restoreFn(req)
	}
	return nil, nil
}

func (r *stubInventoryRepo) ListLogs(_ context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLog], error) {
	if r.listFn != nil {
		return r.listFn(variantID, pager)
	}
	return domain.CursorPage[domain.InventoryLog]{}, nil
}

type stubImportNoteRepo struct {
	notes    map[string]domain.ImportNote
	inserted []domain.ImportNote
}

func (r *stubImportNoteRepo) Insert(_ context.Context, note domain.ImportNote) error {
	if r.notes == nil {
		r.notes = make(map[string]domain.ImportNote)
	}
	r.notes[note.ID] = note
	r.inserted = append(r.inserted, note)
	return nil
}

func (r *stubImportNoteRepo) Update(_ context.Context, note domain.ImportNote) error {
	if _, ok := r.notes[note.ID]; !ok {
		return &repoError{msg: "note missing", notFound: true}
	}
	r.notes[note.ID] = note
	return nil
}

func (r *stubImportNoteRepo) FindByID(_ context.Context, noteID string) (domain.ImportNote, error) {
	note, ok := r.notes[noteID]
	if !ok {
		return domain.ImportNote{}, &repoError{msg: "note missing", notFound: true}
	}
	return note, nil
}

func (r *stubImportNoteRepo) List(_ context.Context, _ repositories.ImportNoteListFilter) (domain.CursorPage[domain.ImportNote], error) {
	page := domain.CursorPage[domain.ImportNote]{}
	for _, note := range r.notes {
		page.Items = append(page.Items, note)
	}
	return page, nil
}

type stubHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (r *stubHealthRepo) Collect(_ context.Context) (domain.SystemHealthReport, error) {
	if r.err != nil {
		return domain.SystemHealthReport{}, r.err
	}
	return r.report, nil
}
