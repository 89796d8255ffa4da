package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/lumen-eyewear/api/internal/payments"
	"github.com/lumen-eyewear/api/internal/services"
)

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func newWebhookRouter(gateway *gatewayStub, orders *orderServiceStub) http.Handler {
	h := NewWebhookHandlers(gateway, orders, handlerClock)
	return mountRoutes(func(r chi.Router) {
		r.Route("/webhooks", h.Routes)
	})
}

func successCallback() payments.CallbackResult {
	return payments.CallbackResult{
		OrderRef:      "ord_1",
		Amount:        530_000,
		ResponseCode:  "00",
		TransactionNo: "14400996",
		Success:       true,
	}
}

func TestPaymentCallbackSuccess(t *testing.T) {
	gateway := &gatewayStub{verifyFn: func(url.Values) (payments.CallbackResult, error) {
		return successCallback(), nil
	}}
	orders := &orderServiceStub{}
	router := newWebhookRouter(gateway, orders)

	rec := doRequest(router, jsonRequest(http.MethodGet, "/webhooks/payment?vnp_TxnRef=ord_1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ipnResponse
	decodeBody(t, rec, &resp)
	if resp.RspCode != "00" {
		t.Fatalf("RspCode = %s, want 00", resp.RspCode)
	}

	if len(orders.payments) != 1 {
		t.Fatalf("payment results = %d, want 1", len(orders.payments))
	}
	cmd := orders.payments[0]
	if cmd.OrderID != "ord_1" || !cmd.Success || cmd.ProviderRef != "14400996" {
		t.Fatalf("payment command = %+v", cmd)
	}
	if !cmd.OccurredAt.Equal(handlerClock()) {
		t.Fatalf("occurredAt = %v, want handler clock", cmd.OccurredAt)
	}
}

func TestPaymentCallbackInvalidSignature(t *testing.T) {
	gateway := &gatewayStub{verifyFn: func(url.Values) (payments.CallbackResult, error) {
		return payments.CallbackResult{}, payments.ErrInvalidSignature
	}}
	orders := &orderServiceStub{}
	router := newWebhookRouter(gateway, orders)

	rec := doRequest(router, jsonRequest(http.MethodGet, "/webhooks/payment", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, IPN responses always use 200", rec.Code)
	}
	var resp ipnResponse
	decodeBody(t, rec, &resp)
	if resp.RspCode != "97" {
		t.Fatalf("RspCode = %s, want 97", resp.RspCode)
	}
	if len(orders.payments) != 0 {
		t.Fatalf("tampered callback changed order state")
	}
}

func TestPaymentCallbackMissingSignature(t *testing.T) {
	router := newWebhookRouter(&gatewayStub{}, &orderServiceStub{})

	rec := doRequest(router, jsonRequest(http.MethodGet, "/webhooks/payment", nil))

	var resp ipnResponse
	decodeBody(t, rec, &resp)
	if resp.RspCode != "97" {
		t.Fatalf("RspCode = %s, want 97", resp.RspCode)
	}
}

func TestPaymentCallbackMalformed(t *testing.T) {
	gateway := &gatewayStub{verifyFn: func(url.Values) (payments.CallbackResult, error) {
		return payments.CallbackResult{}, errors.New("vnp_Amount is not numeric")
	}}
	router := newWebhookRouter(gateway, &orderServiceStub{})

	rec := doRequest(router, jsonRequest(http.MethodGet, "/webhooks/payment", nil))

	var resp ipnResponse
	decodeBody(t, rec, &resp)
	if resp.RspCode != "99" {
		t.Fatalf("RspCode = %s, want 99", resp.RspCode)
	}
}

func TestPaymentCallbackOrderNotFound(t *testing.T) {
	gateway := &gatewayStub{verifyFn: func(url.Values) (payments.CallbackResult, error) {
		return successCallback(), nil
	}}
	orders := &orderServiceStub{recordPaymentFn: func(services.PaymentResultCommand) (services.Order, error) {
		return services.Order{}, services.ErrOrderNotFound
	}}
	router := newWebhookRouter(gateway, orders)

	rec := doRequest(router, jsonRequest(http.MethodGet, "/webhooks/payment", nil))

	var resp ipnResponse
	decodeBody(t, rec, &resp)
	if resp.RspCode != "01" {
		t.Fatalf("RspCode = %s, want 01", resp.RspCode)
	}
}

func TestPaymentCallbackDuplicate(t *testing.T) {
	gateway := &gatewayStub{verifyFn: func(url.Values) (payments.CallbackResult, error) {
		return successCallback(), nil
	}}
	orders := &orderServiceStub{recordPaymentFn: func(services.PaymentResultCommand) (services.Order, error) {
		return services.Order{}, services.ErrOrderConflict
	}}
	router := newWebhookRouter(gateway, orders)

	rec := doRequest(router, jsonRequest(http.MethodGet, "/webhooks/payment", nil))

	var resp ipnResponse
	decodeBody(t, rec, &resp)
	if resp.RspCode != "02" {
		t.Fatalf("RspCode = %s, want 02", resp.RspCode)
	}
}

func TestPaymentCallbackAcceptsPostForm(t *testing.T) {
	var gotValues url.Values
	gateway := &gatewayStub{verifyFn: func(values url.Values) (payments.CallbackResult, error) {
		gotValues = values
		return successCallback(), nil
	}}
	router := newWebhookRouter(gateway, &orderServiceStub{})

	form := url.Values{}
	form.Set("vnp_TxnRef", "ord_1")
	form.Set("vnp_ResponseCode", "00")
	req := jsonRequest(http.MethodPost, "/webhooks/payment", form.Encode())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := doRequest(router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotValues.Get("vnp_TxnRef") != "ord_1" {
		t.Fatalf("form values not forwarded: %v", gotValues)
	}
}

func TestPaymentCallbackWithoutGateway(t *testing.T) {
	h := NewWebhookHandlers(nil, &orderServiceStub{}, handlerClock)
	router := mountRoutes(func(r chi.Router) {
		r.Route("/webhooks", h.Routes)
	})

	rec := doRequest(router, jsonRequest(http.MethodGet, "/webhooks/payment", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "webhook_unavailable") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
