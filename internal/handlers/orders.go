package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/payments"
	"github.com/lumen-eyewear/api/internal/platform/auth"
	"github.com/lumen-eyewear/api/internal/platform/httpx"
	"github.com/lumen-eyewear/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024
	maxOrderActionBody   = 4 * 1024
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:           {},
	domain.OrderStatusProcessing:        {},
	domain.OrderStatusProcessingSuccess: {},
	domain.OrderStatusProcessingFailed:  {},
	domain.OrderStatusConfirming:        {},
	domain.OrderStatusConfirmed:         {},
	domain.OrderStatusDelivering:        {},
	domain.OrderStatusDelivered:         {},
	domain.OrderStatusCompleted:         {},
	domain.OrderStatusRefundRequested:   {},
	domain.OrderStatusRefunding:         {},
	domain.OrderStatusRefunded:          {},
	domain.OrderStatusCanceled:          {},
}

type createOrderRequest struct {
	Items           []orderLineRequest `json:"items"`
	ShippingAddress addressRequest     `json:"shipping_address"`
	PaymentMethod   string             `json:"payment_method"`
	VoucherCodes    []string           `json:"voucher_codes"`
}

type orderLineRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int64  `json:"quantity"`
}

type addressRequest struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	Ward      string `json:"ward"`
	District  string `json:"district"`
	Province  string `json:"province"`
}

type orderActionRequest struct {
	Reason         string `json:"reason"`
	ExpectedStatus string `json:"expected_status"`
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	orders  services.OrderService
	refunds services.RefundService
	gateway payments.Gateway
}

// NewOrderHandlers constructs a new OrderHandlers instance. The gateway is
// optional; without it gateway orders are created without a redirect URL.
func NewOrderHandlers(orders services.OrderService, refunds services.RefundService, gateway payments.Gateway) *OrderHandlers {
	return &OrderHandlers{
		orders:  orders,
		refunds: refunds,
		gateway: gateway,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/history", h.listHistory)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:complete", h.completeOrder)
	r.Post("/{orderID}:request-refund", h.requestRefund)
	r.Post("/{orderID}:cancel-refund-request", h.cancelRefundRequest)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.OrderLineInput, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, services.OrderLineInput{
			VariantID: strings.TrimSpace(line.VariantID),
			Quantity:  line.Quantity,
		})
	}

	// Guests create orders without an identity; the order simply has no
	// customer attached.
	var customerID string
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		customerID = strings.TrimSpace(identity.UID)
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		CustomerID: customerID,
		Items:      items,
		ShippingAddress: domain.ShippingAddress{
			Recipient: strings.TrimSpace(req.ShippingAddress.Recipient),
			Phone:     strings.TrimSpace(req.ShippingAddress.Phone),
			Street:    strings.TrimSpace(req.ShippingAddress.Street),
			Ward:      strings.TrimSpace(req.ShippingAddress.Ward),
			District:  strings.TrimSpace(req.ShippingAddress.District),
			Province:  strings.TrimSpace(req.ShippingAddress.Province),
		},
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		VoucherCodes:  req.VoucherCodes,
		ActorID:       customerID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	response := createOrderResponse{Order: buildOrderPayload(order)}

	if order.PaymentMethod == domain.PaymentMethodGateway && h.gateway != nil {
		paymentURL, err := h.gateway.PaymentURL(ctx, payments.PaymentRequest{
			OrderID:     order.ID,
			OrderNumber: order.Number,
			Amount:      order.Totals.Total,
			ClientIP:    clientIP(r),
		})
		if err == nil {
			response.PaymentURL = paymentURL
		}
	}

	writeJSONResponse(w, http.StatusCreated, response)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	filter, ok := parseOrderListFilter(ctx, w, r)
	if !ok {
		return
	}
	filter.CustomerID = strings.TrimSpace(identity.UID)

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	details, _, ok := h.loadOwnedOrder(ctx, w, r)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusOK, orderDetailsResponse{
		Order:        buildOrderPayload(details.Order),
		Capabilities: buildCapabilitiesPayload(details.Capabilities),
	})
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	details, _, ok := h.loadOwnedOrder(ctx, w, r)
	if !ok {
		return
	}

	history, err := h.orders.ListHistory(ctx, details.Order.ID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildHistoryResponse(history))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	details, identity, ok := h.loadOwnedOrder(ctx, w, r)
	if !ok {
		return
	}

	req, ok := decodeActionRequest(ctx, w, r)
	if !ok {
		return
	}

	cmd := services.CancelOrderCommand{
		OrderID: details.Order.ID,
		ActorID: strings.TrimSpace(identity.UID),
		Reason:  strings.TrimSpace(req.Reason),
	}
	if expected, ok, valid := parseExpectedStatus(req.ExpectedStatus); !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
		return
	} else if ok {
		cmd.ExpectedStatus = &expected
	}

	order, err := h.refunds.Cancel(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.orders.Complete)
}

func (h *OrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.orders.RequestRefund)
}

func (h *OrderHandlers) cancelRefundRequest(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, h.orders.CancelRefundRequest)
}

func (h *OrderHandlers) runAction(w http.ResponseWriter, r *http.Request, action func(context.Context, services.OrderActionCommand) (services.Order, error)) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	details, identity, ok := h.loadOwnedOrder(ctx, w, r)
	if !ok {
		return
	}

	req, ok := decodeActionRequest(ctx, w, r)
	if !ok {
		return
	}

	cmd := services.OrderActionCommand{
		OrderID: details.Order.ID,
		ActorID: strings.TrimSpace(identity.UID),
		Reason:  strings.TrimSpace(req.Reason),
	}
	if expected, ok, valid := parseExpectedStatus(req.ExpectedStatus); !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_status must be a valid order status", http.StatusBadRequest))
		return
	} else if ok {
		cmd.ExpectedStatus = &expected
	}

	order, err := action(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// loadOwnedOrder resolves the path order and enforces that the caller owns it.
// Orders belonging to other customers surface as not found.
func (h *OrderHandlers) loadOwnedOrder(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.OrderDetails, *auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.OrderDetails{}, nil, false
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.OrderDetails{}, nil, false
	}

	details, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return services.OrderDetails{}, nil, false
	}

	if !strings.EqualFold(strings.TrimSpace(details.Order.CustomerID), strings.TrimSpace(identity.UID)) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return services.OrderDetails{}, nil, false
	}

	return details, identity, true
}

func decodeActionRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (orderActionRequest, bool) {
	var req orderActionRequest
	body, err := readLimitedBody(r, maxOrderActionBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return req, false
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return req, false
		}
	}
	return req, true
}

func parseOrderListFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	query := r.URL.Query()

	var filter services.OrderListFilter

	for _, raw := range parseFilterValues(query["status"]) {
		status, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown order status", http.StatusBadRequest))
			return filter, false
		}
		filter.Status = append(filter.Status, status)
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return filter, false
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return filter, false
		}
		filter.DateRange.To = &ts
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return filter, false
	}
	filter.Pagination = services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	return filter, true
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := validOrderStatuses[status]
	return status, ok
}

func parseExpectedStatus(raw string) (domain.OrderStatus, bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, true
	}
	status, ok := parseOrderStatus(raw)
	if !ok {
		return "", false, false
	}
	return status, true, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderRefundWindowClosed):
		httpx.WriteError(ctx, w, httpx.NewError("refund_window_closed", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

// Response payloads -----------------------------------------------------------

type createOrderResponse struct {
	Order      orderPayload `json:"order"`
	PaymentURL string       `json:"payment_url,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderDetailsResponse struct {
	Order        orderPayload        `json:"order"`
	Capabilities capabilitiesPayload `json:"capabilities"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type historyResponse struct {
	Items []historyEntryPayload `json:"items"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	Number        string `json:"number"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderPayload struct {
	ID              string                      `json:"id"`
	Number          string                      `json:"number"`
	CustomerID      string                      `json:"customer_id,omitempty"`
	Status          string                      `json:"status"`
	PaymentMethod   string                      `json:"payment_method"`
	PaymentStatus   string                      `json:"payment_status"`
	Totals          orderTotalsPayload          `json:"totals"`
	Items           []orderItemPayload          `json:"items"`
	ShippingAddress *addressPayload             `json:"shipping_address,omitempty"`
	VoucherCodes    []string                    `json:"voucher_codes,omitempty"`
	ProcessingError *processingErrorPayload     `json:"processing_error,omitempty"`
	CancelReason    string                      `json:"cancel_reason,omitempty"`
	TrackingNumber  string                      `json:"tracking_number,omitempty"`
	Carrier         string                      `json:"carrier,omitempty"`
	PlacedAt        string                      `json:"placed_at,omitempty"`
	ConfirmedAt     string                      `json:"confirmed_at,omitempty"`
	DeliveringAt    string                      `json:"delivering_at,omitempty"`
	DeliveredAt     string                      `json:"delivered_at,omitempty"`
	CompletedAt     string                      `json:"completed_at,omitempty"`
	RefundedAt      string                      `json:"refunded_at,omitempty"`
	CanceledAt      string                      `json:"canceled_at,omitempty"`
	CreatedAt       string                      `json:"created_at"`
	UpdatedAt       string                      `json:"updated_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal     int64 `json:"subtotal"`
	ShippingCost int64 `json:"shipping_cost"`
	Discount     int64 `json:"discount"`
	Total        int64 `json:"total"`
}

type orderItemPayload struct {
	VariantID   string            `json:"variant_id"`
	SKU         string            `json:"sku"`
	ProductName string            `json:"product_name"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	UnitPrice   int64             `json:"unit_price"`
	Quantity    int64             `json:"quantity"`
	LineTotal   int64             `json:"line_total"`
}

type addressPayload struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Street    string `json:"street"`
	Ward      string `json:"ward,omitempty"`
	District  string `json:"district,omitempty"`
	Province  string `json:"province"`
}

type processingErrorPayload struct {
	Stage      string `json:"stage"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	OccurredAt string `json:"occurred_at"`
}

type capabilitiesPayload struct {
	CanCancel              bool `json:"can_cancel"`
	CanConfirm             bool `json:"can_confirm"`
	CanMarkDelivering      bool `json:"can_mark_delivering"`
	CanMarkDelivered       bool `json:"can_mark_delivered"`
	CanComplete            bool `json:"can_complete"`
	CanRequestRefund       bool `json:"can_request_refund"`
	CanApproveRefund       bool `json:"can_approve_refund"`
	CanRejectRefund        bool `json:"can_reject_refund"`
	CanCancelRefundRequest bool `json:"can_cancel_refund_request"`
}

type historyEntryPayload struct {
	ID         string `json:"id"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status"`
	Actor      string `json:"actor,omitempty"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func buildOrderListResponse(page domain.CursorPage[domain.Order]) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, orderSummaryPayload{
			ID:            order.ID,
			Number:        order.Number,
			Status:        string(order.Status),
			PaymentMethod: string(order.PaymentMethod),
			PaymentStatus: string(order.PaymentStatus),
			Total:         order.Totals.Total,
			CreatedAt:     formatTime(order.CreatedAt),
		})
	}
	return orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		Number:        order.Number,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		Totals: orderTotalsPayload{
			Subtotal:     order.Totals.Subtotal,
			ShippingCost: order.Totals.ShippingCost,
			Discount:     order.Totals.Discount,
			Total:        order.Totals.Total,
		},
		Items:          make([]orderItemPayload, 0, len(order.Items)),
		VoucherCodes:   order.VoucherCodes,
		CancelReason:   order.CancelReason,
		TrackingNumber: order.TrackingNumber,
		Carrier:        order.Carrier,
		PlacedAt:       formatTimePointer(order.PlacedAt),
		ConfirmedAt:    formatTimePointer(order.ConfirmedAt),
		DeliveringAt:   formatTimePointer(order.DeliveringAt),
		DeliveredAt:    formatTimePointer(order.DeliveredAt),
		CompletedAt:    formatTimePointer(order.CompletedAt),
		RefundedAt:     formatTimePointer(order.RefundedAt),
		CanceledAt:     formatTimePointer(order.CanceledAt),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			VariantID:   item.VariantID,
			SKU:         item.SKU,
			ProductName: item.ProductName,
			Attributes:  item.Attributes,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}

	if order.ShippingAddress != nil {
		payload.ShippingAddress = &addressPayload{
			Recipient: order.ShippingAddress.Recipient,
			Phone:     order.ShippingAddress.Phone,
			Street:    order.ShippingAddress.Street,
			Ward:      order.ShippingAddress.Ward,
			District:  order.ShippingAddress.District,
			Province:  order.ShippingAddress.Province,
		}
	}

	if order.ProcessingError != nil {
		payload.ProcessingError = &processingErrorPayload{
			Stage:      order.ProcessingError.Stage,
			Code:       string(order.ProcessingError.Code),
			Message:    order.ProcessingError.Message,
			OccurredAt: formatTime(order.ProcessingError.OccurredAt),
		}
	}

	return payload
}

func buildCapabilitiesPayload(caps domain.OrderCapabilities) capabilitiesPayload {
	return capabilitiesPayload{
		CanCancel:              caps.CanCancel,
		CanConfirm:             caps.CanConfirm,
		CanMarkDelivering:      caps.CanMarkDelivering,
		CanMarkDelivered:       caps.CanMarkDelivered,
		CanComplete:            caps.CanComplete,
		CanRequestRefund:       caps.CanRequestRefund,
		CanApproveRefund:       caps.CanApproveRefund,
		CanRejectRefund:        caps.CanRejectRefund,
		CanCancelRefundRequest: caps.CanCancelRefundRequest,
	}
}

func buildHistoryResponse(history []domain.OrderStatusHistory) historyResponse {
	items := make([]historyEntryPayload, 0, len(history))
	for _, entry := range history {
		items = append(items, historyEntryPayload{
			ID:         entry.ID,
			FromStatus: string(entry.FromStatus),
			ToStatus:   string(entry.ToStatus),
			Actor:      entry.Actor,
			Note:       entry.Note,
			CreatedAt:  formatTime(entry.CreatedAt),
		})
	}
	return historyResponse{Items: items}
}
