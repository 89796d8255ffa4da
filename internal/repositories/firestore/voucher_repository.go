package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/lumen-eyewear/api/internal/domain"
	pfirestore "github.com/lumen-eyewear/api/internal/platform/firestore"
)

const vouchersCollection = "vouchers"

// VoucherRepository stores voucher definitions keyed by their upper-cased
// code. Vouchers are never deleted; historical orders keep referencing them.
type VoucherRepository struct {
	provider *pfirestore.Provider
	vouchers *pfirestore.BaseRepository[voucherDocument]
}

// NewVoucherRepository constructs a Firestore-backed voucher repository.
func NewVoucherRepository(provider *pfirestore.Provider) (*VoucherRepository, error) {
	if provider == nil {
		return nil, errors.New("voucher repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil)
	return &VoucherRepository{provider: provider, vouchers: base}, nil
}

func (r *VoucherRepository) Insert(ctx context.Context, voucher domain.Voucher) error {
	if r == nil || r.provider == nil {
		return errors.New("voucher repository not initialised")
	}
	code := normaliseVoucherCode(voucher.Code)
	if code == "" {
		return pfirestore.WrapError("vouchers.insert", errors.New("voucher code is required"))
	}
	ref, err := r.vouchers.DocumentRef(ctx, code)
	if err != nil {
		return err
	}
	voucher.Code = code
	_, err = ref.Create(ctx, newVoucherDocument(voucher))
	return pfirestore.WrapError("vouchers.insert", err)
}

func (r *VoucherRepository) Update(ctx context.Context, voucher domain.Voucher) error {
	if r == nil || r.provider == nil {
		return errors.New("voucher repository not initialised")
	}
	code := normaliseVoucherCode(voucher.Code)
	if code == "" {
		return pfirestore.WrapError("vouchers.update", errors.New("voucher code is required"))
	}
	ref, err := r.vouchers.DocumentRef(ctx, code)
	if err != nil {
		return err
	}
	voucher.Code = code
	_, err = ref.Set(ctx, newVoucherDocument(voucher))
	return pfirestore.WrapError("vouchers.update", err)
}

func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if r == nil || r.vouchers == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	doc, err := r.vouchers.Get(ctx, normaliseVoucherCode(code))
	if err != nil {
		return domain.Voucher{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// IncrementUsage adds delta to the stored counter with a transactional
// read-increment-write, so concurrent redemptions never lose updates.
func (r *VoucherRepository) IncrementUsage(ctx context.Context, code string, delta int64) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	normalised := normaliseVoucherCode(code)
	if normalised == "" {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.increment", errors.New("voucher code is required"))
	}
	if delta == 0 {
		return r.FindByCode(ctx, normalised)
	}

	var updated domain.Voucher
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.vouchers.DocumentRef(ctx, normalised)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.WrapError("vouchers.increment", err)
			}
			return err
		}
		var doc voucherDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode voucher %s: %w", normalised, err)
		}
		doc.TimesUsed += delta
		if doc.TimesUsed < 0 {
			doc.TimesUsed = 0
		}
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(normalised)
		return nil
	})
	if err != nil {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.increment", err)
	}
	return updated, nil
}

func normaliseVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type voucherDocument struct {
	Code              string    `firestore:"code"`
	DiscountType      string    `firestore:"discountType"`
	DiscountValue     int64     `firestore:"discountValue"`
	MaxDiscountAmount *int64    `firestore:"maxDiscountAmount,omitempty"`
	MinOrderValue     int64     `firestore:"minOrderValue"`
	UsageLimit        *int64    `firestore:"usageLimit,omitempty"`
	UsagePerUser      int64     `firestore:"usagePerUser"`
	TimesUsed         int64     `firestore:"timesUsed"`
	ValidFrom         time.Time `firestore:"validFrom"`
	ValidUntil        time.Time `firestore:"validUntil"`
	Active            bool      `firestore:"active"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func newVoucherDocument(v domain.Voucher) voucherDocument {
	return voucherDocument{
		Code:              v.Code,
		DiscountType:      string(v.DiscountType),
		DiscountValue:     v.DiscountValue,
		MaxDiscountAmount: v.MaxDiscountAmount,
		MinOrderValue:     v.MinOrderValue,
		UsageLimit:        v.UsageLimit,
		UsagePerUser:      v.UsagePerUser,
		TimesUsed:         v.TimesUsed,
		ValidFrom:         v.ValidFrom.UTC(),
		ValidUntil:        v.ValidUntil.UTC(),
		Active:            v.Active,
		CreatedAt:         v.CreatedAt.UTC(),
		UpdatedAt:         v.UpdatedAt.UTC(),
	}
}

func (d voucherDocument) toDomain(id string) domain.Voucher {
	return domain.Voucher{
		ID:                id,
		Code:              d.Code,
		DiscountType:      domain.DiscountType(d.DiscountType),
		DiscountValue:     d.DiscountValue,
		MaxDiscountAmount: d.MaxDiscountAmount,
		MinOrderValue:     d.MinOrderValue,
		UsageLimit:        d.UsageLimit,
		UsagePerUser:      d.UsagePerUser,
		TimesUsed:         d.TimesUsed,
		ValidFrom:         d.ValidFrom,
		ValidUntil:        d.ValidUntil,
		Active:            d.Active,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
