package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/platform/auth"
	"github.com/lumen-eyewear/api/internal/platform/httpx"
	"github.com/lumen-eyewear/api/internal/repositories"
	"github.com/lumen-eyewear/api/internal/services"
)

const (
	maxAdminBodySize       = 64 * 1024
	defaultImportPageSize  = 20
	maxImportPageSize      = 100
	defaultLogPageSize     = 50
	maxInventoryLogPageMax = 200
)

type markDeliveringRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	ExpectedStatus string `json:"expected_status"`
}

type voucherRequest struct {
	Code              string `json:"code"`
	DiscountType      string `json:"discount_type"`
	DiscountValue     int64  `json:"discount_value"`
	MaxDiscountAmount *int64 `json:"max_discount_amount"`
	MinOrderValue     int64  `json:"min_order_value"`
	UsageLimit        *int64 `json:"usage_limit"`
	UsagePerUser      int64  `json:"usage_per_user"`
	ValidFrom         string `json:"valid_from"`
	ValidUntil        string `json:"valid_until"`
	Active            bool   `json:"active"`
}

type importNoteRequest struct {
	Items []importNoteItemRequest `json:"items"`
}

type importNoteItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	UnitCost  int64  `json:"unit_cost"`
}

type stockAdjustmentRequest struct {
	Lines         []stockAdjustmentLine `json:"lines"`
	TransactionID string                `json:"transaction_id"`
}

type stockAdjustmentLine struct {
	VariantID string `json:"variant_id"`
	// Delta is signed: positive adds stock, negative removes it.
	Delta int64 `json:"delta"`
}

// AdminHandlers exposes the staff order management surface.
type AdminHandlers struct {
	orders    services.OrderService
	refunds   services.RefundService
	vouchers  services.VoucherService
	warehouse services.WarehouseService
	inventory services.InventoryService
}

// NewAdminHandlers constructs the admin handler set.
func NewAdminHandlers(
	orders services.OrderService,
	refunds services.RefundService,
	vouchers services.VoucherService,
	warehouse services.WarehouseService,
	inventory services.InventoryService,
) *AdminHandlers {
	return &AdminHandlers{
		orders:    orders,
		refunds:   refunds,
		vouchers:  vouchers,
		warehouse: warehouse,
		inventory: inventory,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Get("/orders/{orderID}/history", h.listHistory)
	r.Post("/orders/{orderID}:confirm", h.confirmOrder)
	r.Post("/orders/{orderID}:mark-delivering", h.markDelivering)
	r.Post("/orders/{orderID}:mark-delivered", h.markDelivered)
	r.Post("/orders/{orderID}:complete", h.completeOrder)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.Post("/orders/{orderID}:approve-refund", h.approveRefund)
	r.Post("/orders/{orderID}:reject-refund", h.rejectRefund)
	r.Post("/orders/{orderID}:confirm-refunded", h.confirmRefunded)

	r.Get("/dashboard/summary", h.dashboardSummary)

	r.Post("/vouchers", h.createVoucher)
	r.Get("/vouchers/{code}", h.getVoucher)
	r.Put("/vouchers/{code}", h.updateVoucher)

	r.Post("/import-notes", h.createImportNote)
	r.Get("/import-notes", h.listImportNotes)
	r.Get("/import-notes/{noteID}", h.getImportNote)
	r.Post("/import-notes/{noteID}:complete", h.completeImportNote)
	r.Post("/import-notes/{noteID}:cancel", h.cancelImportNote)

	r.Get("/inventory/{variantID}/logs", h.listInventoryLogs)
	r.Post("/inventory:adjust", h.adjustInventory)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, ok := parseOrderListFilter(ctx, w, r)
	if !ok {
		return
	}
	filter.CustomerID = strings.TrimSpace(r.URL.Query().Get("customer_id"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := pathParam(ctx, w, r, "orderID", "order id is required")
	if !ok {
		return
	}

	details, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderDetailsResponse{
		Order:        buildOrderPayload(details.Order),
		Capabilities: buildCapabilitiesPayload(details.Capabilities),
	})
}

func (h *AdminHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := pathParam(ctx, w, r, "orderID", "order id is required")
	if !ok {
		return
	}

	history, err := h.orders.ListHistory(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildHistoryResponse(history))
}

func (h *AdminHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	h.runOrderAction(w, r, h.orders.Confirm)
}

func (h *AdminHandlers) markDelivered(w http.ResponseWriter, r *http.Request) {
	h.runOrderAction(w, r, h.orders.MarkDelivered)
}

func (h *AdminHandlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.runOrderAction(w, r, h.orders.Complete)
}

func (h *AdminHandlers) approveRefund(w http.ResponseWriter, r *http.Request) {
	h.runOrderAction(w, r, h.orders.ApproveRefund)
}

func (h *AdminHandlers) markDelivering(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := pathParam(ctx, w, r, "orderID", "order id is required")
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req markDeliveringRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.MarkDeliveringCommand{
		OrderID:        orderID,
		ActorID:        actorID(ctx),
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		Carrier:        strings.TrimSpace(req.Carrier),
	}
	if expected, set, valid := parseExpectedStatus(req.ExpectedStatus); !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
		return
	} else if set {
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.MarkDelivering(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := pathParam(ctx, w, r, "orderID", "order id is required")
	if !ok {
		return
	}
	req, ok := decodeActionRequest(ctx, w, r)
	if !ok {
		return
	}

	cmd := services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: actorID(ctx),
		Reason:  strings.TrimSpace(req.Reason),
	}
	if expected, set, valid := parseExpectedStatus(req.ExpectedStatus); !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
		return
	} else if set {
		cmd.ExpectedStatus = &expected
	}

	order, err := h.refunds.Cancel(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) rejectRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := pathParam(ctx, w, r, "orderID", "order id is required")
	if !ok {
		return
	}
	req, ok := decodeActionRequest(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.refunds.RejectRefund(ctx, services.RejectRefundCommand{
		OrderID: orderID,
		ActorID: actorID(ctx),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// confirmRefunded drives a refund to completion by hand. It covers orders
// parked in REFUNDING after the queue exhausted its retries; the ledger and
// gateway steps stay safe to replay.
func (h *AdminHandlers) confirmRefunded(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "refund service unavailable", http.StatusServiceUnavailable))
		return
	}
	orderID, ok := pathParam(ctx, w, r, "orderID", "order id is required")
	if !ok {
		return
	}
	req, ok := decodeActionRequest(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.refunds.ProcessRefund(ctx, services.ProcessRefundCommand{
		OrderID: orderID,
		ActorID: actorID(ctx),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) runOrderAction(w http.ResponseWriter, r *http.Request, action func(context.Context, services.OrderActionCommand) (services.Order, error)) {
	ctx := r.Context()
	orderID, ok := pathParam(ctx, w, r, "orderID", "order id is required")
	if !ok {
		return
	}
	req, ok := decodeActionRequest(ctx, w, r)
	if !ok {
		return
	}

	cmd := services.OrderActionCommand{
		OrderID: orderID,
		ActorID: actorID(ctx),
		Reason:  strings.TrimSpace(req.Reason),
	}
	if expected, set, valid := parseExpectedStatus(req.ExpectedStatus); !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
		return
	} else if set {
		cmd.ExpectedStatus = &expected
	}

	order, err := action(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var filter services.SummaryFilter
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &ts
	}

	summary, err := h.orders.DashboardSummary(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	counts := make(map[string]int64, len(summary.CountsByStatus))
	for status, count := range summary.CountsByStatus {
		counts[string(status)] = count
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"counts_by_status": counts,
		"revenue":          summary.Revenue,
		"generated_at":     formatTime(summary.GeneratedAt),
	})
}

// Vouchers --------------------------------------------------------------------

func (h *AdminHandlers) createVoucher(w http.ResponseWriter, r *http.Request) {
	h.upsertVoucher(w, r, "", true)
}

func (h *AdminHandlers) updateVoucher(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	h.upsertVoucher(w, r, code, false)
}

func (h *AdminHandlers) upsertVoucher(w http.ResponseWriter, r *http.Request, code string, create bool) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req voucherRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if code != "" {
		req.Code = code
	}

	voucher, ok := buildVoucher(ctx, w, req)
	if !ok {
		return
	}

	cmd := services.UpsertVoucherCommand{Voucher: voucher, ActorID: actorID(ctx)}

	var result services.Voucher
	if create {
		result, err = h.vouchers.CreateVoucher(ctx, cmd)
	} else {
		result, err = h.vouchers.UpdateVoucher(ctx, cmd)
	}
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if create {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, voucherResponse{Voucher: buildVoucherPayload(result)})
}

func (h *AdminHandlers) getVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service unavailable", http.StatusServiceUnavailable))
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "voucher code is required", http.StatusBadRequest))
		return
	}

	voucher, err := h.vouchers.GetVoucher(ctx, code)
	if err != nil {
		writeVoucherError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, voucherResponse{Voucher: buildVoucherPayload(voucher)})
}

// Import notes ----------------------------------------------------------------

func (h *AdminHandlers) createImportNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.warehouse == nil {
		httpx.WriteError(ctx, w, httpx.NewError("warehouse_service_unavailable", "warehouse service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req importNoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.ImportNoteItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.ImportNoteItem{
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		})
	}

	note, err := h.warehouse.CreateImportNote(ctx, services.CreateImportNoteCommand{
		Items:   items,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeImportNoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, importNoteResponse{Note: buildImportNotePayload(note)})
}

func (h *AdminHandlers) listImportNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.warehouse == nil {
		httpx.WriteError(ctx, w, httpx.NewError("warehouse_service_unavailable", "warehouse service unavailable", http.StatusServiceUnavailable))
		return
	}
	query := r.URL.Query()

	var filter services.ImportNoteListFilter
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.ImportNoteStatus(strings.ToUpper(strings.TrimSpace(raw)))
		switch status {
		case domain.ImportNoteStatusDraft, domain.ImportNoteStatusCompleted, domain.ImportNoteStatusCancelled:
			filter.Status = append(filter.Status, status)
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown import note status", http.StatusBadRequest))
			return
		}
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultImportPageSize, maxImportPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}
	filter.Pagination = services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	page, err := h.warehouse.ListImportNotes(ctx, filter)
	if err != nil {
		writeImportNoteError(ctx, w, err)
		return
	}

	items := make([]importNotePayload, 0, len(page.Items))
	for _, note := range page.Items {
		items = append(items, buildImportNotePayload(note))
	}
	writeJSONResponse(w, http.StatusOK, importNoteListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) getImportNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.warehouse == nil {
		httpx.WriteError(ctx, w, httpx.NewError("warehouse_service_unavailable", "warehouse service unavailable", http.StatusServiceUnavailable))
		return
	}
	noteID, ok := pathParam(ctx, w, r, "noteID", "import note id is required")
	if !ok {
		return
	}

	note, err := h.warehouse.GetImportNote(ctx, noteID)
	if err != nil {
		writeImportNoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, importNoteResponse{Note: buildImportNotePayload(note)})
}

func (h *AdminHandlers) completeImportNote(w http.ResponseWriter, r *http.Request) {
	h.runImportNoteAction(w, r, func(ctx context.Context, cmd services.ImportNoteActionCommand) (services.ImportNote, error) {
		return h.warehouse.CompleteImportNote(ctx, cmd)
	})
}

func (h *AdminHandlers) cancelImportNote(w http.ResponseWriter, r *http.Request) {
	h.runImportNoteAction(w, r, func(ctx context.Context, cmd services.ImportNoteActionCommand) (services.ImportNote, error) {
		return h.warehouse.CancelImportNote(ctx, cmd)
	})
}

func (h *AdminHandlers) runImportNoteAction(w http.ResponseWriter, r *http.Request, action func(context.Context, services.ImportNoteActionCommand) (services.ImportNote, error)) {
	ctx := r.Context()
	if h.warehouse == nil {
		httpx.WriteError(ctx, w, httpx.NewError("warehouse_service_unavailable", "warehouse service unavailable", http.StatusServiceUnavailable))
		return
	}
	noteID, ok := pathParam(ctx, w, r, "noteID", "import note id is required")
	if !ok {
		return
	}

	note, err := action(ctx, services.ImportNoteActionCommand{
		NoteID:  noteID,
		ActorID: actorID(ctx),
	})
	if err != nil {
		writeImportNoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, importNoteResponse{Note: buildImportNotePayload(note)})
}

// Inventory -------------------------------------------------------------------

func (h *AdminHandlers) listInventoryLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	variantID, ok := pathParam(ctx, w, r, "variantID", "variant id is required")
	if !ok {
		return
	}

	pageSize, err := parsePageSize(r.URL.Query().Get("page_size"), defaultLogPageSize, maxInventoryLogPageMax)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListLogs(ctx, variantID, services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]inventoryLogPayload, 0, len(page.Items))
	for _, log := range page.Items {
		items = append(items, buildInventoryLogPayload(log))
	}
	writeJSONResponse(w, http.StatusOK, inventoryLogListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) adjustInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req stockAdjustmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if len(req.Lines) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one adjustment line is required", http.StatusBadRequest))
		return
	}

	// Additions and removals run as separate ledger batches; each stays
	// atomic across its lines.
	var deductions, restorations []repositories.StockLine
	for _, line := range req.Lines {
		variantID := strings.TrimSpace(line.VariantID)
		switch {
		case line.Delta > 0:
			restorations = append(restorations, repositories.StockLine{VariantID: variantID, Quantity: line.Delta})
		case line.Delta < 0:
			deductions = append(deductions, repositories.StockLine{VariantID: variantID, Quantity: -line.Delta})
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "adjustment delta must be non-zero", http.StatusBadRequest))
			return
		}
	}

	actor := actorID(ctx)
	var logs []services.InventoryLog
	if len(deductions) > 0 {
		batch, err := h.inventory.Deduct(ctx, services.StockMutationCommand{
			Lines:         deductions,
			Type:          domain.InventoryTransactionAdjustment,
			TransactionID: strings.TrimSpace(req.TransactionID),
			ActorID:       actor,
		})
		if err != nil {
			writeInventoryError(ctx, w, err)
			return
		}
		logs = append(logs, batch...)
	}
	if len(restorations) > 0 {
		batch, err := h.inventory.Restore(ctx, services.StockMutationCommand{
			Lines:         restorations,
			Type:          domain.InventoryTransactionAdjustment,
			TransactionID: strings.TrimSpace(req.TransactionID),
			ActorID:       actor,
		})
		if err != nil {
			writeInventoryError(ctx, w, err)
			return
		}
		logs = append(logs, batch...)
	}

	items := make([]inventoryLogPayload, 0, len(logs))
	for _, log := range logs {
		items = append(items, buildInventoryLogPayload(log))
	}
	writeJSONResponse(w, http.StatusOK, inventoryLogListResponse{Items: items})
}

// Error mapping and payloads --------------------------------------------------

func writeVoucherError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrVoucherInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_not_found", "voucher not found", http.StatusNotFound))
	case errors.Is(err, services.ErrVoucherConflict):
		httpx.WriteError(ctx, w, httpx.NewError("voucher_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("voucher_error", "failed to process voucher request", http.StatusInternalServerError))
	}
}

func writeImportNoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrImportNoteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrImportNoteNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("import_note_not_found", "import note not found", http.StatusNotFound))
	case errors.Is(err, services.ErrImportNoteInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("import_note_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrImportNoteConflict):
		httpx.WriteError(ctx, w, httpx.NewError("import_note_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("import_note_error", "failed to process import note request", http.StatusInternalServerError))
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", "variant not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}

func actorID(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return strings.TrimSpace(identity.UID)
}

func pathParam(ctx context.Context, w http.ResponseWriter, r *http.Request, name, message string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return "", false
	}
	return value, true
}

func buildVoucher(ctx context.Context, w http.ResponseWriter, req voucherRequest) (domain.Voucher, bool) {
	var validFrom, validUntil time.Time
	if raw := strings.TrimSpace(req.ValidFrom); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "valid_from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return domain.Voucher{}, false
		}
		validFrom = ts
	}
	if raw := strings.TrimSpace(req.ValidUntil); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "valid_until must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return domain.Voucher{}, false
		}
		validUntil = ts
	}

	return domain.Voucher{
		Code:              strings.TrimSpace(req.Code),
		DiscountType:      domain.DiscountType(strings.ToUpper(strings.TrimSpace(req.DiscountType))),
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinOrderValue:     req.MinOrderValue,
		UsageLimit:        req.UsageLimit,
		UsagePerUser:      req.UsagePerUser,
		ValidFrom:         validFrom,
		ValidUntil:        validUntil,
		Active:            req.Active,
	}, true
}

type voucherResponse struct {
	Voucher voucherPayload `json:"voucher"`
}

type voucherPayload struct {
	ID                string `json:"id"`
	Code              string `json:"code"`
	DiscountType      string `json:"discount_type"`
	DiscountValue     int64  `json:"discount_value"`
	MaxDiscountAmount *int64 `json:"max_discount_amount,omitempty"`
	MinOrderValue     int64  `json:"min_order_value"`
	UsageLimit        *int64 `json:"usage_limit,omitempty"`
	UsagePerUser      int64  `json:"usage_per_user"`
	TimesUsed         int64  `json:"times_used"`
	ValidFrom         string `json:"valid_from"`
	ValidUntil        string `json:"valid_until"`
	Active            bool   `json:"active"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func buildVoucherPayload(voucher domain.Voucher) voucherPayload {
	return voucherPayload{
		ID:                voucher.ID,
		Code:              voucher.Code,
		DiscountType:      string(voucher.DiscountType),
		DiscountValue:     voucher.DiscountValue,
		MaxDiscountAmount: voucher.MaxDiscountAmount,
		MinOrderValue:     voucher.MinOrderValue,
		UsageLimit:        voucher.UsageLimit,
		UsagePerUser:      voucher.UsagePerUser,
		TimesUsed:         voucher.TimesUsed,
		ValidFrom:         formatTime(voucher.ValidFrom),
		ValidUntil:        formatTime(voucher.ValidUntil),
		Active:            voucher.Active,
		CreatedAt:         formatTime(voucher.CreatedAt),
		UpdatedAt:         formatTime(voucher.UpdatedAt),
	}
}

type importNoteResponse struct {
	Note importNotePayload `json:"import_note"`
}

type importNoteListResponse struct {
	Items         []importNotePayload `json:"items"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type importNotePayload struct {
	ID          string                  `json:"id"`
	Number      string                  `json:"number"`
	Status      string                  `json:"status"`
	Items       []importNoteItemPayload `json:"items"`
	CreatedBy   string                  `json:"created_by,omitempty"`
	CompletedAt string                  `json:"completed_at,omitempty"`
	CreatedAt   string                  `json:"created_at"`
	UpdatedAt   string                  `json:"updated_at,omitempty"`
}

type importNoteItemPayload struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
	UnitCost  int64  `json:"unit_cost"`
}

func buildImportNotePayload(note domain.ImportNote) importNotePayload {
	items := make([]importNoteItemPayload, 0, len(note.Items))
	for _, item := range note.Items {
		items = append(items, importNoteItemPayload{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		})
	}
	return importNotePayload{
		ID:          note.ID,
		Number:      note.Number,
		Status:      string(note.Status),
		Items:       items,
		CreatedBy:   note.CreatedBy,
		CompletedAt: formatTimePointer(note.CompletedAt),
		CreatedAt:   formatTime(note.CreatedAt),
		UpdatedAt:   formatTime(note.UpdatedAt),
	}
}

type inventoryLogListResponse struct {
	Items         []inventoryLogPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type inventoryLogPayload struct {
	ID             string `json:"id"`
	VariantID      string `json:"variant_id"`
	QuantityChange int64  `json:"quantity_change"`
	Type           string `json:"type"`
	TransactionID  string `json:"transaction_id"`
	StockBefore    int64  `json:"stock_before"`
	StockAfter     int64  `json:"stock_after"`
	Actor          string `json:"actor,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func buildInventoryLogPayload(log domain.InventoryLog) inventoryLogPayload {
	return inventoryLogPayload{
		ID:             log.ID,
		VariantID:      log.VariantID,
		QuantityChange: log.QuantityChange,
		Type:           string(log.Type),
		TransactionID:  log.TransactionID,
		StockBefore:    log.StockBefore,
		StockAfter:     log.StockAfter,
		Actor:          log.Actor,
		CreatedAt:      formatTime(log.CreatedAt),
	}
}
