package payments

import (
	"context"
	"errors"
	"net/url"
)

var (
	// ErrMissingSignature is returned when a callback carries no signature.
	ErrMissingSignature = errors.New("payments: callback signature missing")
	// ErrInvalidSignature is returned when a callback signature does not
	// match the recomputed value. The callback must cause no state change.
	ErrInvalidSignature = errors.New("payments: callback signature mismatch")
)

// PaymentRequest describes one redirect payment to initiate.
type PaymentRequest struct {
	OrderID     string
	OrderNumber string
	// Amount in whole VND. The wire format multiplies by 100.
	Amount    int64
	ClientIP  string
	Locale    string
	CreatedAt int64 // unix seconds; zero means now
}

// RefundRequest describes a refund of a previously captured payment.
type RefundRequest struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Reason      string
}

// CallbackResult is the verified outcome of a gateway notification.
type CallbackResult struct {
	OrderRef      string
	Amount        int64
	ResponseCode  string
	TransactionNo string
	Success       bool
}

// Gateway abstracts the redirect payment provider. The lifecycle engine never
// sees wire-level details.
type Gateway interface {
	// PaymentURL builds the signed redirect URL the customer is sent to.
	PaymentURL(ctx context.Context, req PaymentRequest) (string, error)
	// VerifyCallback validates the signature on a gateway notification and
	// decodes its outcome. Unsigned or tampered callbacks return an error.
	VerifyCallback(values url.Values) (CallbackResult, error)
	// Refund requests the gateway return a captured payment. Errors are for
	// the caller to log and follow up on; they never block order progress.
	Refund(ctx context.Context, req RefundRequest) error
}
