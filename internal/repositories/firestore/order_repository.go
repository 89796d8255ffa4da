package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/lumen-eyewear/api/internal/domain"
	pfirestore "github.com/lumen-eyewear/api/internal/platform/firestore"
	"github.com/lumen-eyewear/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	statusHistoryColl      = "statusHistory"
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	defaultStaleScanLimit  = 100
	maxVoucherUseScanLimit = 500
)

// OrderRepository persists order aggregates in Firestore with the status
// history as an append-only subcollection under each order document.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: base}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("orders.insert", errors.New("order id is required"))
	}

	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)

	if tx, ok := txFromContext(ctx); ok {
		return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("orders.insert", err)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("orders.update", errors.New("order id is required"))
	}

	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)

	if tx, ok := txFromContext(ctx); ok {
		return pfirestore.WrapError("orders.update", tx.Set(ref, doc))
	}
	_, err = ref.Set(ctx, doc)
	return pfirestore.WrapError("orders.update", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
		}
		return doc.toDomain(snap.Ref.ID), nil
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if customer := strings.TrimSpace(filter.CustomerID); customer != "" {
		query = query.Where("customerId", "==", customer)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		query = query.Where("status", "in", statuses)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// AppendHistory writes one immutable status history record. There is no
// update or delete path for history entries.
func (r *OrderRepository) AppendHistory(ctx context.Context, entry domain.OrderStatusHistory) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(entry.OrderID)
	if orderID == "" || strings.TrimSpace(entry.ID) == "" {
		return pfirestore.WrapError("orders.history.append", errors.New("history entry requires order id and id"))
	}

	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	ref := orderRef.Collection(statusHistoryColl).Doc(entry.ID)
	doc := historyDocument{
		FromStatus: string(entry.FromStatus),
		ToStatus:   string(entry.ToStatus),
		Actor:      strings.TrimSpace(entry.Actor),
		Note:       strings.TrimSpace(entry.Note),
		CreatedAt:  entry.CreatedAt.UTC(),
	}

	if tx, ok := txFromContext(ctx); ok {
		return pfirestore.WrapError("orders.history.append", tx.Create(ref, doc))
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("orders.history.append", err)
}

func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	orderRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, err
	}

	iter := orderRef.Collection(statusHistoryColl).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var entries []domain.OrderStatusHistory
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.history.list", err)
		}
		var doc historyDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID, orderID))
	}
	return entries, nil
}

func (r *OrderRepository) CountVoucherUse(ctx context.Context, customerID string, code string, exclude []domain.OrderStatus) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("order repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	code = strings.ToUpper(strings.TrimSpace(code))
	if customerID == "" || code == "" {
		return 0, pfirestore.WrapError("orders.voucherUse", errors.New("customer id and code are required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("orders.voucherUse", err)
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, status := range exclude {
		excluded[string(status)] = struct{}{}
	}

	iter := client.Collection(ordersCollection).
		Where("customerId", "==", customerID).
		Where("voucherCodes", "array-contains", code).
		Limit(maxVoucherUseScanLimit).
		Documents(ctx)
	defer iter.Stop()

	var count int64
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, pfirestore.WrapError("orders.voucherUse", err)
		}
		status, _ := snap.DataAt("status")
		if s, ok := status.(string); ok {
			if _, skip := excluded[s]; skip {
				continue
			}
		}
		count++
	}
	return count, nil
}

func (r *OrderRepository) ListStale(ctx context.Context, status domain.OrderStatus, cutoff time.Time, limit int) ([]string, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = defaultStaleScanLimit
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.stale", err)
	}

	field := "createdAt"
	switch status {
	case domain.OrderStatusDelivered:
		field = "deliveredAt"
	case domain.OrderStatusPending:
		field = "createdAt"
	default:
		field = "updatedAt"
	}

	iter := client.Collection(ordersCollection).
		Where("status", "==", string(status)).
		Where(field, "<", cutoff.UTC()).
		OrderBy(field, firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.stale", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

func (r *OrderRepository) Summary(ctx context.Context, filter repositories.SummaryFilter) (domain.DashboardSummary, error) {
	if r == nil || r.provider == nil {
		return domain.DashboardSummary{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.DashboardSummary{}, pfirestore.WrapError("orders.summary", err)
	}

	query := client.Collection(ordersCollection).Query
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	summary := domain.DashboardSummary{CountsByStatus: make(map[domain.OrderStatus]int64)}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.DashboardSummary{}, pfirestore.WrapError("orders.summary", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.DashboardSummary{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		summary.CountsByStatus[domain.OrderStatus(doc.Status)]++
		if domain.PaymentStatus(doc.PaymentStatus) == domain.PaymentStatusPaid {
			summary.Revenue += doc.Total
		}
	}
	return summary, nil
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	Number        string `firestore:"number"`
	CustomerID    string `firestore:"customerId,omitempty"`
	Status        string `firestore:"status"`
	PaymentMethod string `firestore:"paymentMethod"`
	PaymentStatus string `firestore:"paymentStatus"`

	Subtotal     int64 `firestore:"subtotal"`
	ShippingCost int64 `firestore:"shippingCost"`
	Discount     int64 `firestore:"discount"`
	Total        int64 `firestore:"total"`

	Items           []orderItemDocument `firestore:"items"`
	ShippingAddress *addressDocument    `firestore:"shippingAddress,omitempty"`
	VoucherCodes    []string            `firestore:"voucherCodes,omitempty"`

	ProcessingError *annotationDocument `firestore:"processingError,omitempty"`
	CancelReason    string              `firestore:"cancelReason,omitempty"`

	TrackingNumber string `firestore:"trackingNumber,omitempty"`
	Carrier        string `firestore:"carrier,omitempty"`

	PlacedAt          *time.Time `firestore:"placedAt,omitempty"`
	ProcessingAt      *time.Time `firestore:"processingAt,omitempty"`
	ConfirmedAt       *time.Time `firestore:"confirmedAt,omitempty"`
	DeliveringAt      *time.Time `firestore:"deliveringAt,omitempty"`
	DeliveredAt       *time.Time `firestore:"deliveredAt,omitempty"`
	CompletedAt       *time.Time `firestore:"completedAt,omitempty"`
	RefundRequestedAt *time.Time `firestore:"refundRequestedAt,omitempty"`
	RefundedAt        *time.Time `firestore:"refundedAt,omitempty"`
	CanceledAt        *time.Time `firestore:"canceledAt,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type orderItemDocument struct {
	VariantID   string            `firestore:"variantId"`
	SKU         string            `firestore:"sku"`
	ProductName string            `firestore:"productName"`
	Attributes  map[string]string `firestore:"attributes,omitempty"`
	UnitPrice   int64             `firestore:"unitPrice"`
	Quantity    int64             `firestore:"qty"`
	LineTotal   int64             `firestore:"lineTotal"`
}

type addressDocument struct {
	Recipient string `firestore:"recipient"`
	Phone     string `firestore:"phone"`
	Street    string `firestore:"street"`
	Ward      string `firestore:"ward,omitempty"`
	District  string `firestore:"district,omitempty"`
	Province  string `firestore:"province"`
}

type annotationDocument struct {
	Stage      string    `firestore:"stage"`
	Code       string    `firestore:"code"`
	Message    string    `firestore:"message"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

type historyDocument struct {
	FromStatus string    `firestore:"fromStatus"`
	ToStatus   string    `firestore:"toStatus"`
	Actor      string    `firestore:"actor,omitempty"`
	Note       string    `firestore:"note,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func (d historyDocument) toDomain(id, orderID string) domain.OrderStatusHistory {
	return domain.OrderStatusHistory{
		ID:         id,
		OrderID:    orderID,
		FromStatus: domain.OrderStatus(d.FromStatus),
		ToStatus:   domain.OrderStatus(d.ToStatus),
		Actor:      d.Actor,
		Note:       d.Note,
		CreatedAt:  d.CreatedAt,
	}
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			VariantID:   strings.TrimSpace(item.VariantID),
			SKU:         strings.TrimSpace(item.SKU),
			ProductName: item.ProductName,
			Attributes:  item.Attributes,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		}
	}

	doc := orderDocument{
		Number:            strings.TrimSpace(order.Number),
		CustomerID:        strings.TrimSpace(order.CustomerID),
		Status:            string(order.Status),
		PaymentMethod:     string(order.PaymentMethod),
		PaymentStatus:     string(order.PaymentStatus),
		Subtotal:          order.Totals.Subtotal,
		ShippingCost:      order.Totals.ShippingCost,
		Discount:          order.Totals.Discount,
		Total:             order.Totals.Total,
		Items:             items,
		VoucherCodes:      order.VoucherCodes,
		CancelReason:      strings.TrimSpace(order.CancelReason),
		TrackingNumber:    strings.TrimSpace(order.TrackingNumber),
		Carrier:           strings.TrimSpace(order.Carrier),
		PlacedAt:          order.PlacedAt,
		ProcessingAt:      order.ProcessingAt,
		ConfirmedAt:       order.ConfirmedAt,
		DeliveringAt:      order.DeliveringAt,
		DeliveredAt:       order.DeliveredAt,
		CompletedAt:       order.CompletedAt,
		RefundRequestedAt: order.RefundRequestedAt,
		RefundedAt:        order.RefundedAt,
		CanceledAt:        order.CanceledAt,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
	}

	if order.ShippingAddress != nil {
		doc.ShippingAddress = &addressDocument{
			Recipient: order.ShippingAddress.Recipient,
			Phone:     order.ShippingAddress.Phone,
			Street:    order.ShippingAddress.Street,
			Ward:      order.ShippingAddress.Ward,
			District:  order.ShippingAddress.District,
			Province:  order.ShippingAddress.Province,
		}
	}
	if order.ProcessingError != nil {
		doc.ProcessingError = &annotationDocument{
			Stage:      order.ProcessingError.Stage,
			Code:       string(order.ProcessingError.Code),
			Message:    order.ProcessingError.Message,
			OccurredAt: order.ProcessingError.OccurredAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			VariantID:   item.VariantID,
			SKU:         item.SKU,
			ProductName: item.ProductName,
			Attributes:  item.Attributes,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		}
	}

	order := domain.Order{
		ID:            id,
		Number:        d.Number,
		CustomerID:    d.CustomerID,
		Status:        domain.OrderStatus(d.Status),
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		Totals: domain.OrderTotals{
			Subtotal:     d.Subtotal,
			ShippingCost: d.ShippingCost,
			Discount:     d.Discount,
			Total:        d.Total,
		},
		Items:             items,
		VoucherCodes:      d.VoucherCodes,
		CancelReason:      d.CancelReason,
		TrackingNumber:    d.TrackingNumber,
		Carrier:           d.Carrier,
		PlacedAt:          d.PlacedAt,
		ProcessingAt:      d.ProcessingAt,
		ConfirmedAt:       d.ConfirmedAt,
		DeliveringAt:      d.DeliveringAt,
		DeliveredAt:       d.DeliveredAt,
		CompletedAt:       d.CompletedAt,
		RefundRequestedAt: d.RefundRequestedAt,
		RefundedAt:        d.RefundedAt,
		CanceledAt:        d.CanceledAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}

	if d.ShippingAddress != nil {
		order.ShippingAddress = &domain.ShippingAddress{
			Recipient: d.ShippingAddress.Recipient,
			Phone:     d.ShippingAddress.Phone,
			Street:    d.ShippingAddress.Street,
			Ward:      d.ShippingAddress.Ward,
			District:  d.ShippingAddress.District,
			Province:  d.ShippingAddress.Province,
		}
	}
	if d.ProcessingError != nil {
		order.ProcessingError = &domain.ProcessingAnnotation{
			Stage:      d.ProcessingError.Stage,
			Code:       domain.ProcessingErrorCode(d.ProcessingError.Code),
			Message:    d.ProcessingError.Message,
			OccurredAt: d.ProcessingError.OccurredAt,
		}
	}
	return order
}

type orderPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return orderPageToken{}, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return orderPageToken{}, fmt.Errorf("decode order page token json: %w", err)
	}
	return token, nil
}
