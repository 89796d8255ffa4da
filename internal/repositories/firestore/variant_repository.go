package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lumen-eyewear/api/internal/domain"
	pfirestore "github.com/lumen-eyewear/api/internal/platform/firestore"
)

// VariantRepository reads catalog variant documents. Stock on these documents
// is mutated only through InventoryRepository.
type VariantRepository struct {
	provider *pfirestore.Provider
	variants *pfirestore.BaseRepository[variantDocument]
}

// NewVariantRepository constructs a Firestore-backed variant reader.
func NewVariantRepository(provider *pfirestore.Provider) (*VariantRepository, error) {
	if provider == nil {
		return nil, errors.New("variant repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection, nil, nil)
	return &VariantRepository{provider: provider, variants: base}, nil
}

func (r *VariantRepository) FindByID(ctx context.Context, variantID string) (domain.ProductVariant, error) {
	if r == nil || r.variants == nil {
		return domain.ProductVariant{}, errors.New("variant repository not initialised")
	}
	doc, err := r.variants.Get(ctx, variantID)
	if err != nil {
		return domain.ProductVariant{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs fetches the given variants in one round trip. Missing variants
// are simply absent from the result map; callers decide whether that is an
// error.
func (r *VariantRepository) FindByIDs(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("variant repository not initialised")
	}
	if len(variantIDs) == 0 {
		return map[string]domain.ProductVariant{}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("variants.getAll", err)
	}

	refs := make([]*firestore.DocumentRef, 0, len(variantIDs))
	for _, id := range variantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(variantsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			// GetAll reports missing documents through snapshot.Exists, but
			// surface a consistent wrapper if the backend rejects the batch.
			return nil, pfirestore.WrapError("variants.getAll", err)
		}
		return nil, pfirestore.WrapError("variants.getAll", err)
	}

	result := make(map[string]domain.ProductVariant, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode variant %s: %w", snap.Ref.ID, err)
		}
		result[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return result, nil
}
