package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	paramVersion       = "vnp_Version"
	paramCommand       = "vnp_Command"
	paramMerchantCode  = "vnp_TmnCode"
	paramAmount        = "vnp_Amount"
	paramCreateDate    = "vnp_CreateDate"
	paramCurrency      = "vnp_CurrCode"
	paramClientIP      = "vnp_IpAddr"
	paramLocale        = "vnp_Locale"
	paramOrderInfo     = "vnp_OrderInfo"
	paramOrderType     = "vnp_OrderType"
	paramReturnURL     = "vnp_ReturnUrl"
	paramTxnRef        = "vnp_TxnRef"
	paramSignature     = "vnp_SecureHash"
	paramSignatureType = "vnp_SecureHashType"
	paramResponseCode  = "vnp_ResponseCode"
	paramTransactionNo = "vnp_TransactionNo"

	commandPay    = "pay"
	commandRefund = "refund"

	responseCodeSuccess = "00"

	createDateLayout = "20060102150405"
)

// VNPayConfig carries the wire-level settings for the hosted payment page.
type VNPayConfig struct {
	BaseURL      string
	RefundURL    string
	ReturnURL    string
	MerchantCode string
	// Secret is the HMAC-SHA512 key shared with the gateway.
	Secret  string
	Version string
}

// VNPayGateway implements Gateway against the VNPay redirect protocol.
type VNPayGateway struct {
	cfg    VNPayConfig
	client *http.Client
	clock  func() time.Time
}

// VNPayGatewayDeps bundles collaborators required to construct the gateway.
type VNPayGatewayDeps struct {
	Config     VNPayConfig
	HTTPClient *http.Client
	Clock      func() time.Time
}

// NewVNPayGateway constructs a VNPay redirect gateway.
func NewVNPayGateway(deps VNPayGatewayDeps) (*VNPayGateway, error) {
	cfg := deps.Config
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("vnpay gateway: base url is required")
	}
	if strings.TrimSpace(cfg.MerchantCode) == "" {
		return nil, errors.New("vnpay gateway: merchant code is required")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("vnpay gateway: secret is required")
	}
	if cfg.Version == "" {
		cfg.Version = "2.1.0"
	}

	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &VNPayGateway{
		cfg:    cfg,
		client: client,
		clock:  clock,
	}, nil
}

// PaymentURL builds the signed redirect URL for one payment.
func (g *VNPayGateway) PaymentURL(ctx context.Context, req PaymentRequest) (string, error) {
	if g == nil {
		return "", errors.New("vnpay gateway: not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return "", errors.New("vnpay gateway: order id is required")
	}
	if req.Amount <= 0 {
		return "", errors.New("vnpay gateway: amount must be > 0")
	}

	createdAt := g.clock().UTC()
	if req.CreatedAt > 0 {
		createdAt = time.Unix(req.CreatedAt, 0).UTC()
	}

	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = "vn"
	}

	params := map[string]string{
		paramVersion:      g.cfg.Version,
		paramCommand:      commandPay,
		paramMerchantCode: g.cfg.MerchantCode,
		// The wire format carries the amount multiplied by 100.
		paramAmount:     strconv.FormatInt(req.Amount*100, 10),
		paramCreateDate: createdAt.Format(createDateLayout),
		paramCurrency:   "VND",
		paramClientIP:   strings.TrimSpace(req.ClientIP),
		paramLocale:     locale,
		paramOrderInfo:  "Payment for order " + req.OrderNumber,
		paramOrderType:  "other",
		paramReturnURL:  g.cfg.ReturnURL,
		paramTxnRef:     req.OrderID,
	}

	query := buildSignedQuery(params)
	signature := g.sign(query)

	return g.cfg.BaseURL + "?" + query + "&" + paramSignature + "=" + signature, nil
}

// VerifyCallback recomputes the signature over every parameter except the
// signature itself (empty values excluded) and compares in constant time.
func (g *VNPayGateway) VerifyCallback(values url.Values) (CallbackResult, error) {
	if g == nil {
		return CallbackResult{}, errors.New("vnpay gateway: not initialised")
	}

	provided := strings.TrimSpace(values.Get(paramSignature))
	if provided == "" {
		return CallbackResult{}, ErrMissingSignature
	}

	params := make(map[string]string, len(values))
	for key := range values {
		if key == paramSignature || key == paramSignatureType {
			continue
		}
		params[key] = values.Get(key)
	}

	expected := g.sign(buildSignedQuery(params))
	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return CallbackResult{}, ErrInvalidSignature
	}

	var amount int64
	if raw := strings.TrimSpace(values.Get(paramAmount)); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return CallbackResult{}, fmt.Errorf("vnpay gateway: malformed amount %q", raw)
		}
		amount = parsed / 100
	}

	code := strings.TrimSpace(values.Get(paramResponseCode))
	return CallbackResult{
		OrderRef:      strings.TrimSpace(values.Get(paramTxnRef)),
		Amount:        amount,
		ResponseCode:  code,
		TransactionNo: strings.TrimSpace(values.Get(paramTransactionNo)),
		Success:       code == responseCodeSuccess,
	}, nil
}

// Refund issues a signed refund call against the gateway's refund endpoint.
func (g *VNPayGateway) Refund(ctx context.Context, req RefundRequest) error {
	if g == nil {
		return errors.New("vnpay gateway: not initialised")
	}
	if strings.TrimSpace(g.cfg.RefundURL) == "" {
		return errors.New("vnpay gateway: refund url is not configured")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return errors.New("vnpay gateway: order id is required")
	}
	if req.Amount <= 0 {
		return errors.New("vnpay gateway: amount must be > 0")
	}

	params := map[string]string{
		paramVersion:      g.cfg.Version,
		paramCommand:      commandRefund,
		paramMerchantCode: g.cfg.MerchantCode,
		paramAmount:       strconv.FormatInt(req.Amount*100, 10),
		paramCreateDate:   g.clock().UTC().Format(createDateLayout),
		paramOrderInfo:    strings.TrimSpace(req.Reason),
		paramTxnRef:       req.OrderID,
	}

	query := buildSignedQuery(params)
	body := query + "&" + paramSignature + "=" + g.sign(query)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.RefundURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("vnpay gateway: build refund request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("vnpay gateway: refund call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vnpay gateway: refund call returned %d", resp.StatusCode)
	}

	var decoded struct {
		ResponseCode string `json:"vnp_ResponseCode"`
		Message      string `json:"vnp_Message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("vnpay gateway: decode refund response: %w", err)
	}
	if decoded.ResponseCode != responseCodeSuccess {
		return fmt.Errorf("vnpay gateway: refund rejected with code %s: %s", decoded.ResponseCode, decoded.Message)
	}
	return nil
}

func (g *VNPayGateway) sign(query string) string {
	mac := hmac.New(sha512.New, []byte(g.cfg.Secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// buildSignedQuery renders the parameters as the canonical query string the
// signature covers: alphabetical order, URL-encoded, empty values excluded.
func buildSignedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if strings.TrimSpace(value) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params[key]))
	}
	return sb.String()
}
