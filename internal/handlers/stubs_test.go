package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/payments"
	"github.com/lumen-eyewear/api/internal/platform/auth"
	"github.com/lumen-eyewear/api/internal/services"
)

func handlerClock() time.Time {
	return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
}

// orderServiceStub overrides the handful of OrderService methods a test
// exercises. Anything else panics via the embedded nil interface.
type orderServiceStub struct {
	services.OrderService

	createFn         func(cmd services.CreateOrderCommand) (services.Order, error)
	getFn            func(orderID string) (services.OrderDetails, error)
	listFn           func(filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	historyFn        func(orderID string) ([]services.OrderStatusHistory, error)
	actionFn         func(cmd services.OrderActionCommand) (services.Order, error)
	markDeliveringFn func(cmd services.MarkDeliveringCommand) (services.Order, error)
	summaryFn        func(filter services.SummaryFilter) (services.DashboardSummary, error)

	recordPaymentFn func(cmd services.PaymentResultCommand) (services.Order, error)

	created        []services.CreateOrderCommand
	actions        []services.OrderActionCommand
	markDelivering []services.MarkDeliveringCommand
	payments       []services.PaymentResultCommand
}

func (s *orderServiceStub) CreateOrder(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	s.created = append(s.created, cmd)
	if s.createFn != nil {
		return s.createFn(cmd)
	}
	return sampleOrder("ord_1"), nil
}

func (s *orderServiceStub) GetOrder(_ context.Context, orderID string) (services.OrderDetails, error) {
	if s.getFn != nil {
		return s.getFn(orderID)
	}
	return services.OrderDetails{}, services.ErrOrderNotFound
}

func (s *orderServiceStub) ListOrders(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *orderServiceStub) ListHistory(_ context.Context, orderID string) ([]services.OrderStatusHistory, error) {
	if s.historyFn != nil {
		return s.historyFn(orderID)
	}
	return nil, nil
}

func (s *orderServiceStub) runAction(cmd services.OrderActionCommand) (services.Order, error) {
	s.actions = append(s.actions, cmd)
	if s.actionFn != nil {
		return s.actionFn(cmd)
	}
	return sampleOrder(cmd.OrderID), nil
}

func (s *orderServiceStub) Confirm(_ context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.runAction(cmd)
}

func (s *orderServiceStub) MarkDelivered(_ context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.runAction(cmd)
}

func (s *orderServiceStub) Complete(_ context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.runAction(cmd)
}

func (s *orderServiceStub) RequestRefund(_ context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.runAction(cmd)
}

func (s *orderServiceStub) CancelRefundRequest(_ context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.runAction(cmd)
}

func (s *orderServiceStub) ApproveRefund(_ context.Context, cmd services.OrderActionCommand) (services.Order, error) {
	return s.runAction(cmd)
}

func (s *orderServiceStub) MarkDelivering(_ context.Context, cmd services.MarkDeliveringCommand) (services.Order, error) {
	s.markDelivering = append(s.markDelivering, cmd)
	if s.markDeliveringFn != nil {
		return s.markDeliveringFn(cmd)
	}
	return sampleOrder(cmd.OrderID), nil
}

func (s *orderServiceStub) DashboardSummary(_ context.Context, filter services.SummaryFilter) (services.DashboardSummary, error) {
	if s.summaryFn != nil {
		return s.summaryFn(filter)
	}
	return services.DashboardSummary{}, nil
}

func (s *orderServiceStub) RecordPaymentResult(_ context.Context, cmd services.PaymentResultCommand) (services.Order, error) {
	s.payments = append(s.payments, cmd)
	if s.recordPaymentFn != nil {
		return s.recordPaymentFn(cmd)
	}
	return sampleOrder(cmd.OrderID), nil
}

type refundServiceStub struct {
	cancelFn  func(cmd services.CancelOrderCommand) (services.Order, error)
	processFn func(cmd services.ProcessRefundCommand) (services.Order, error)
	rejectFn  func(cmd services.RejectRefundCommand) (services.Order, error)

	canceled  []services.CancelOrderCommand
	processed []services.ProcessRefundCommand
	rejected  []services.RejectRefundCommand
}

func (s *refundServiceStub) Cancel(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	s.canceled = append(s.canceled, cmd)
	if s.cancelFn != nil {
		return s.cancelFn(cmd)
	}
	order := sampleOrder(cmd.OrderID)
	order.Status = domain.OrderStatusCanceled
	return order, nil
}

func (s *refundServiceStub) ProcessRefund(_ context.Context, cmd services.ProcessRefundCommand) (services.Order, error) {
	s.processed = append(s.processed, cmd)
	if s.processFn != nil {
		return s.processFn(cmd)
	}
	order := sampleOrder(cmd.OrderID)
	order.Status = domain.OrderStatusRefunded
	return order, nil
}

func (s *refundServiceStub) RejectRefund(_ context.Context, cmd services.RejectRefundCommand) (services.Order, error) {
	s.rejected = append(s.rejected, cmd)
	if s.rejectFn != nil {
		return s.rejectFn(cmd)
	}
	return sampleOrder(cmd.OrderID), nil
}

type gatewayStub struct {
	paymentURLFn func(req payments.PaymentRequest) (string, error)
	verifyFn     func(values url.Values) (payments.CallbackResult, error)

	paymentRequests []payments.PaymentRequest
}

func (s *gatewayStub) PaymentURL(_ context.Context, req payments.PaymentRequest) (string, error) {
	s.paymentRequests = append(s.paymentRequests, req)
	if s.paymentURLFn != nil {
		return s.paymentURLFn(req)
	}
	return "https://pay.example.com/redirect?ref=" + req.OrderID, nil
}

func (s *gatewayStub) VerifyCallback(values url.Values) (payments.CallbackResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(values)
	}
	return payments.CallbackResult{}, payments.ErrMissingSignature
}

func (s *gatewayStub) Refund(_ context.Context, _ payments.RefundRequest) error {
	return nil
}

type voucherServiceStub struct {
	services.VoucherService

	createFn func(cmd services.UpsertVoucherCommand) (services.Voucher, error)
	updateFn func(cmd services.UpsertVoucherCommand) (services.Voucher, error)
	getFn    func(code string) (services.Voucher, error)
}

func (s *voucherServiceStub) CreateVoucher(_ context.Context, cmd services.UpsertVoucherCommand) (services.Voucher, error) {
	if s.createFn != nil {
		return s.createFn(cmd)
	}
	return cmd.Voucher, nil
}

func (s *voucherServiceStub) UpdateVoucher(_ context.Context, cmd services.UpsertVoucherCommand) (services.Voucher, error) {
	if s.updateFn != nil {
		return s.updateFn(cmd)
	}
	return cmd.Voucher, nil
}

func (s *voucherServiceStub) GetVoucher(_ context.Context, code string) (services.Voucher, error) {
	if s.getFn != nil {
		return s.getFn(code)
	}
	return services.Voucher{}, services.ErrVoucherNotFound
}

type warehouseServiceStub struct {
	services.WarehouseService

	createFn   func(cmd services.CreateImportNoteCommand) (services.ImportNote, error)
	completeFn func(cmd services.ImportNoteActionCommand) (services.ImportNote, error)
	cancelFn   func(cmd services.ImportNoteActionCommand) (services.ImportNote, error)
	getFn      func(noteID string) (services.ImportNote, error)
	listFn     func(filter services.ImportNoteListFilter) (domain.CursorPage[services.ImportNote], error)
}

func (s *warehouseServiceStub) CreateImportNote(_ context.Context, cmd services.CreateImportNoteCommand) (services.ImportNote, error) {
	if s.createFn != nil {
		return s.createFn(cmd)
	}
	return services.ImportNote{}, nil
}

func (s *warehouseServiceStub) CompleteImportNote(_ context.Context, cmd services.ImportNoteActionCommand) (services.ImportNote, error) {
	if s.completeFn != nil {
		return s.completeFn(cmd)
	}
	return services.ImportNote{}, nil
}

func (s *warehouseServiceStub) CancelImportNote(_ context.Context, cmd services.ImportNoteActionCommand) (services.ImportNote, error) {
	if s.cancelFn != nil {
		return s.cancelFn(cmd)
	}
	return services.ImportNote{}, nil
}

func (s *warehouseServiceStub) GetImportNote(_ context.Context, noteID string) (services.ImportNote, error) {
	if s.getFn != nil {
		return s.getFn(noteID)
	}
	return services.ImportNote{}, services.ErrImportNoteNotFound
}

func (s *warehouseServiceStub) ListImportNotes(_ context.Context, filter services.ImportNoteListFilter) (domain.CursorPage[services.ImportNote], error) {
	if s.listFn != nil {
		return s.listFn(filter)
	}
	return domain.CursorPage[services.ImportNote]{}, nil
}

type inventoryServiceStub struct {
	services.InventoryService

	deductFn  func(cmd services.StockMutationCommand) ([]services.InventoryLog, error)
	restoreFn func(cmd services.StockMutationCommand) ([]services.InventoryLog, error)
	listFn    func(variantID string, pager services.Pagination) (domain.CursorPage[services.InventoryLog], error)

	deducted []services.StockMutationCommand
	restored []services.StockMutationCommand
}

func (s *inventoryServiceStub) Deduct(_ context.Context, cmd services.StockMutationCommand) ([]services.InventoryLog, error) {
	s.deducted = append(s.deducted, cmd)
	if s.deductFn != nil {
		return s.deductFn(cmd)
	}
	return nil, nil
}

func (s *inventoryServiceStub) Restore(_ context.Context, cmd services.StockMutationCommand) ([]services.InventoryLog, error) {
	s.restored = append(s.restored, cmd)
	if s.restoreFn != nil {
		return s.restoreFn(cmd)
	}
	return nil, nil
}

func (s *inventoryServiceStub) ListLogs(_ context.Context, variantID string, pager services.Pagination) (domain.CursorPage[services.InventoryLog], error) {
	if s.listFn != nil {
		return s.listFn(variantID, pager)
	}
	return domain.CursorPage[services.InventoryLog]{}, nil
}

func sampleOrder(id string) domain.Order {
	placedAt := handlerClock()
	return domain.Order{
		ID:            id,
		Number:        "DH000042",
		CustomerID:    "cus_1",
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCOD,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Totals: domain.OrderTotals{
			Subtotal:     500_000,
			ShippingCost: 30_000,
			Total:        530_000,
		},
		Items: []domain.OrderItem{{
			VariantID:   "var_frame",
			SKU:         "FRM-BLK-52",
			ProductName: "Aviator Frame",
			UnitPrice:   500_000,
			Quantity:    1,
			LineTotal:   500_000,
		}},
		ShippingAddress: &domain.ShippingAddress{
			Recipient: "Nguyen Van A",
			Phone:     "0901234567",
			Street:    "12 Le Loi",
			Province:  "Ho Chi Minh",
		},
		PlacedAt:  &placedAt,
		CreatedAt: handlerClock(),
		UpdatedAt: handlerClock(),
	}
}

func mountRoutes(register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	register(r)
	return r
}

func doRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, payload any) *http.Request {
	var body *bytes.Reader
	switch v := payload.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case string:
		body = bytes.NewReader([]byte(v))
	default:
		raw, _ := json.Marshal(v)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asCustomer(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UID:   uid,
		Roles: []string{auth.RoleCustomer},
	}))
}

func asStaff(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UID:   uid,
		Roles: []string{auth.RoleStaff},
	}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &payload)
	return payload.Error
}

func ownedOrderStub(order domain.Order) *orderServiceStub {
	return &orderServiceStub{
		getFn: func(orderID string) (services.OrderDetails, error) {
			if orderID != order.ID {
				return services.OrderDetails{}, services.ErrOrderNotFound
			}
			return services.OrderDetails{
				Order:        order,
				Capabilities: domain.OrderCapabilities{CanCancel: true},
			}, nil
		},
	}
}
