package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumen-eyewear/api/internal/payments"
	"github.com/lumen-eyewear/api/internal/platform/httpx"
	"github.com/lumen-eyewear/api/internal/services"
)

// Gateway IPN acknowledgement codes. The gateway retries anything but "00"
// and "02", so classification matters more than HTTP status here.
const (
	ipnCodeSuccess          = "00"
	ipnCodeOrderNotFound    = "01"
	ipnCodeAlreadyConfirmed = "02"
	ipnCodeInvalidSignature = "97"
	ipnCodeUnknownError     = "99"
)

// WebhookHandlers receives payment gateway notifications.
type WebhookHandlers struct {
	gateway payments.Gateway
	orders  services.OrderService
	clock   func() time.Time
}

// NewWebhookHandlers constructs the webhook handler set.
func NewWebhookHandlers(gateway payments.Gateway, orders services.OrderService, clock func() time.Time) *WebhookHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &WebhookHandlers{
		gateway: gateway,
		orders:  orders,
		clock:   clock,
	}
}

// Routes registers the /webhooks endpoints. The gateway delivers its IPN as a
// GET with query parameters.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/payment", h.paymentCallback)
	r.Post("/payment", h.paymentCallback)
}

func (h *WebhookHandlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.gateway == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment webhook unavailable", http.StatusServiceUnavailable))
		return
	}

	values := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil && len(r.PostForm) > 0 {
			values = r.PostForm
		}
	}

	result, err := h.gateway.VerifyCallback(values)
	if err != nil {
		// A tampered or unsigned callback must cause no state change.
		switch {
		case errors.Is(err, payments.ErrMissingSignature), errors.Is(err, payments.ErrInvalidSignature):
			writeIPNResponse(w, ipnCodeInvalidSignature, "Invalid signature")
		default:
			writeIPNResponse(w, ipnCodeUnknownError, "Malformed callback")
		}
		return
	}

	_, err = h.orders.RecordPaymentResult(ctx, services.PaymentResultCommand{
		OrderID:     result.OrderRef,
		Success:     result.Success,
		ProviderRef: result.TransactionNo,
		OccurredAt:  h.clock().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			writeIPNResponse(w, ipnCodeOrderNotFound, "Order not found")
		case errors.Is(err, services.ErrOrderInvalidTransition), errors.Is(err, services.ErrOrderConflict):
			writeIPNResponse(w, ipnCodeAlreadyConfirmed, "Order already confirmed")
		default:
			writeIPNResponse(w, ipnCodeUnknownError, "Unknown error")
		}
		return
	}

	writeIPNResponse(w, ipnCodeSuccess, "Confirm success")
}

func writeIPNResponse(w http.ResponseWriter, code, message string) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"RspCode": code,
		"Message": message,
	})
}
