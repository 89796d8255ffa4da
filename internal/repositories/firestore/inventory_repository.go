package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lumen-eyewear/api/internal/domain"
	pfirestore "github.com/lumen-eyewear/api/internal/platform/firestore"
	"github.com/lumen-eyewear/api/internal/repositories"
)

const (
	variantsCollection      = "variants"
	inventoryLogsCollection = "inventoryLogs"

	defaultLogPageSize = 50
	maxLogPageSize     = 200
)

// InventoryRepository applies stock mutations through Firestore transactions.
// The transactional read-modify-write over a variant document is the
// exclusive row lock: two mutations of the same variant serialise, mutations
// of disjoint variants proceed in parallel.
type InventoryRepository struct {
	provider *pfirestore.Provider
	variants *pfirestore.BaseRepository[variantDocument]
}

// NewInventoryRepository constructs a Firestore-backed inventory ledger.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	variants := pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection, nil, nil)
	return &InventoryRepository{provider: provider, variants: variants}, nil
}

// Deduct decrements stock for every line inside one transaction. Availability
// is re-checked under the transaction regardless of any pre-check the caller
// ran; if any line fails, no stock is touched.
func (r *InventoryRepository) Deduct(ctx context.Context, req repositories.StockMutationRequest) ([]domain.InventoryLog, error) {
	return r.mutate(ctx, "inventory.deduct", req, -1)
}

// Restore increments stock for every line inside one transaction.
func (r *InventoryRepository) Restore(ctx context.Context, req repositories.StockMutationRequest) ([]domain.InventoryLog, error) {
	return r.mutate(ctx, "inventory.restore", req, +1)
}

func (r *InventoryRepository) mutate(ctx context.Context, op string, req repositories.StockMutationRequest, sign int64) ([]domain.InventoryLog, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("inventory repository not initialised")
	}

	lines, err := normaliseStockLines(req.Lines)
	if err != nil {
		return nil, wrapInventoryError(op, err)
	}
	txRef := strings.TrimSpace(req.TransactionID)
	if txRef == "" {
		return nil, wrapInventoryError(op, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "transaction id is required", nil))
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var logs []domain.InventoryLog
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		logs = logs[:0]

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		// The replay check shares the transaction with the writes below, so a
		// concurrent duplicate serialises against the first application.
		if req.Once {
			dupQuery := client.Collection(inventoryLogsCollection).
				Where("transactionId", "==", txRef).
				Where("type", "==", string(req.Type)).
				Limit(1)
			dupIter := tx.Documents(dupQuery)
			defer dupIter.Stop()
			if _, err := dupIter.Next(); err == nil {
				// Ledger already carries this transaction; nothing to apply.
				return nil
			} else if !errors.Is(err, iterator.Done) {
				return err
			}
		}

		// All reads happen before any write; Firestore transactions forbid
		// interleaving.
		type staged struct {
			ref  *firestore.DocumentRef
			doc  variantDocument
			line repositories.StockLine
		}
		stagedDocs := make([]staged, 0, len(lines))
		for _, line := range lines {
			ref, err := r.variants.DocumentRef(ctx, line.VariantID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewInventoryError(repositories.InventoryErrorVariantNotFound, fmt.Sprintf("variant %s has no stock record", line.VariantID), err)
				}
				return err
			}
			var doc variantDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode variant %s: %w", line.VariantID, err)
			}
			if sign < 0 && doc.Stock < line.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s: have %d, need %d", line.VariantID, doc.Stock, line.Quantity), nil)
			}
			stagedDocs = append(stagedDocs, staged{ref: ref, doc: doc, line: line})
		}

		for _, entry := range stagedDocs {
			delta := sign * entry.line.Quantity
			before := entry.doc.Stock
			after := before + delta

			entry.doc.Stock = after
			entry.doc.UpdatedAt = now
			if err := tx.Set(entry.ref, entry.doc); err != nil {
				return err
			}

			logRef := client.Collection(inventoryLogsCollection).NewDoc()
			logDoc := inventoryLogDocument{
				VariantID:      entry.line.VariantID,
				QuantityChange: delta,
				Type:           string(req.Type),
				TransactionID:  txRef,
				StockBefore:    before,
				StockAfter:     after,
				Actor:          strings.TrimSpace(req.Actor),
				CreatedAt:      now,
			}
			if err := tx.Create(logRef, logDoc); err != nil {
				return err
			}
			logs = append(logs, logDoc.toDomain(logRef.ID))
		}
		return nil
	})
	if err != nil {
		return nil, wrapInventoryError(op, err)
	}
	return logs, nil
}

func (r *InventoryRepository) ListLogs(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLog], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.InventoryLog]{}, errors.New("inventory repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.CursorPage[domain.InventoryLog]{}, wrapInventoryError("inventory.logs", repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "variant id is required", nil))
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultLogPageSize
	}
	if pageSize > maxLogPageSize {
		pageSize = maxLogPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.InventoryLog]{}, wrapInventoryError("inventory.logs", err)
	}

	query := client.Collection(inventoryLogsCollection).
		Where("variantId", "==", variantID).
		OrderBy("createdAt", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.InventoryLog]{}, wrapInventoryError("inventory.logs", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.InventoryLog
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.InventoryLog]{}, wrapInventoryError("inventory.logs", err)
		}
		var doc inventoryLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.InventoryLog]{}, fmt.Errorf("decode inventory log %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(entries) > pageSize
	if hasMore {
		entries = entries[:pageSize]
	}
	var nextToken string
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.InventoryLog]{}, wrapInventoryError("inventory.logs", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.InventoryLog]{Items: entries, NextPageToken: nextToken}, nil
}

// normaliseStockLines aggregates duplicate variants and fixes a stable lock
// order so two transactions touching the same variants never deadlock.
func normaliseStockLines(lines []repositories.StockLine) ([]repositories.StockLine, error) {
	if len(lines) == 0 {
		return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "at least one line is required", nil)
	}

	merged := make(map[string]int64, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.VariantID)
		if id == "" {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, "variant id is required", nil)
		}
		if line.Quantity <= 0 {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidInput, fmt.Sprintf("quantity for %s must be > 0", id), nil)
		}
		merged[id] += line.Quantity
	}

	result := make([]repositories.StockLine, 0, len(merged))
	for id, qty := range merged {
		result = append(result, repositories.StockLine{VariantID: id, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VariantID < result[j].VariantID })
	return result, nil
}

// Document mapping ----------------------------------------------------------

type variantDocument struct {
	SKU        string            `firestore:"sku"`
	Name       string            `firestore:"name"`
	Attributes map[string]string `firestore:"attributes,omitempty"`
	Price      int64             `firestore:"price"`
	Active     bool              `firestore:"active"`
	Stock      int64             `firestore:"stock"`
	UpdatedAt  time.Time         `firestore:"updatedAt"`
}

func (d variantDocument) toDomain(id string) domain.ProductVariant {
	return domain.ProductVariant{
		ID:         id,
		SKU:        d.SKU,
		Name:       d.Name,
		Attributes: d.Attributes,
		Price:      d.Price,
		Active:     d.Active,
		Stock:      d.Stock,
		UpdatedAt:  d.UpdatedAt,
	}
}

type inventoryLogDocument struct {
	VariantID      string    `firestore:"variantId"`
	QuantityChange int64     `firestore:"quantityChange"`
	Type           string    `firestore:"type"`
	TransactionID  string    `firestore:"transactionId"`
	StockBefore    int64     `firestore:"stockBefore"`
	StockAfter     int64     `firestore:"stockAfter"`
	Actor          string    `firestore:"actor,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func (d inventoryLogDocument) toDomain(id string) domain.InventoryLog {
	return domain.InventoryLog{
		ID:             id,
		VariantID:      d.VariantID,
		QuantityChange: d.QuantityChange,
		Type:           domain.InventoryTransactionType(d.Type),
		TransactionID:  d.TransactionID,
		StockBefore:    d.StockBefore,
		StockAfter:     d.StockAfter,
		Actor:          d.Actor,
		CreatedAt:      d.CreatedAt,
	}
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
