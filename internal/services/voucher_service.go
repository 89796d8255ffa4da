package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/repositories"
)

const voucherIDPrefix = "vch_"

var (
	// ErrVoucherInvalidInput signals the caller provided invalid voucher data.
	ErrVoucherInvalidInput = errors.New("voucher: invalid input")
	// ErrVoucherNotFound indicates the voucher code is unknown.
	ErrVoucherNotFound = errors.New("voucher: not found")
	// ErrVoucherConflict indicates a duplicate code or a concurrent update.
	ErrVoucherConflict = errors.New("voucher: conflict")
)

// voucherUsageExcludedStatuses are not charged against a customer's per-user
// allowance. Refunded orders still count; the customer did use the voucher.
var voucherUsageExcludedStatuses = []domain.OrderStatus{
	domain.OrderStatusCanceled,
	domain.OrderStatusProcessingFailed,
}

// VoucherServiceDeps bundles collaborators required to construct the voucher service.
type VoucherServiceDeps struct {
	Vouchers    repositories.VoucherRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type voucherService struct {
	vouchers repositories.VoucherRepository
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
}

// NewVoucherService wires dependencies into a concrete VoucherService implementation.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, errors.New("voucher service: voucher repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("voucher service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &voucherService{
		vouchers: deps.Vouchers,
		orders:   deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *voucherService) GetVoucher(ctx context.Context, code string) (Voucher, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Voucher{}, fmt.Errorf("%w: voucher code is required", ErrVoucherInvalidInput)
	}
	voucher, err := s.vouchers.FindByCode(ctx, code)
	if err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}
	return voucher, nil
}

func (s *voucherService) CreateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error) {
	voucher, err := s.normaliseVoucher(cmd.Voucher)
	if err != nil {
		return Voucher{}, err
	}

	now := s.now()
	voucher.ID = voucherIDPrefix + s.newID()
	voucher.TimesUsed = 0
	voucher.CreatedAt = now
	voucher.UpdatedAt = now

	if err := s.vouchers.Insert(ctx, voucher); err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}
	return voucher, nil
}

func (s *voucherService) UpdateVoucher(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error) {
	voucher, err := s.normaliseVoucher(cmd.Voucher)
	if err != nil {
		return Voucher{}, err
	}

	existing, err := s.vouchers.FindByCode(ctx, voucher.Code)
	if err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}

	// The usage counter and provenance survive every definition update.
	voucher.ID = existing.ID
	voucher.TimesUsed = existing.TimesUsed
	voucher.CreatedAt = existing.CreatedAt
	voucher.UpdatedAt = s.now()

	if err := s.vouchers.Update(ctx, voucher); err != nil {
		return Voucher{}, s.mapRepositoryError(err)
	}
	return voucher, nil
}

func (s *voucherService) IsValid(voucher Voucher, now time.Time) (bool, string) {
	if !voucher.Active {
		return false, "voucher is not active"
	}
	if now.Before(voucher.ValidFrom) {
		return false, "voucher is not yet valid"
	}
	if now.After(voucher.ValidUntil) {
		return false, "voucher has expired"
	}
	if voucher.UsageLimit != nil && voucher.TimesUsed >= *voucher.UsageLimit {
		return false, "voucher usage limit reached"
	}
	return true, ""
}

func (s *voucherService) CanUse(ctx context.Context, voucher Voucher, customerID string, subtotal int64) (bool, string, error) {
	if ok, reason := s.IsValid(voucher, s.now()); !ok {
		return false, reason, nil
	}
	if subtotal < voucher.MinOrderValue {
		return false, fmt.Sprintf("order subtotal below minimum of %d", voucher.MinOrderValue), nil
	}

	// Guests have no usage history to check against.
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return true, "", nil
	}

	perUser := voucher.UsagePerUser
	if perUser <= 0 {
		perUser = 1
	}

	used, err := s.orders.CountVoucherUse(ctx, customerID, voucher.Code, voucherUsageExcludedStatuses)
	if err != nil {
		return false, "", s.mapRepositoryError(err)
	}
	if used >= perUser {
		return false, "voucher already used the maximum number of times", nil
	}
	return true, "", nil
}

func (s *voucherService) CalculateDiscount(voucher Voucher, subtotal int64, shippingCost int64) int64 {
	switch voucher.DiscountType {
	case domain.DiscountTypePercentage:
		// Round half up.
		discount := (subtotal*voucher.DiscountValue + 50) / 100
		if voucher.MaxDiscountAmount != nil && discount > *voucher.MaxDiscountAmount {
			discount = *voucher.MaxDiscountAmount
		}
		return discount
	case domain.DiscountTypeFixedAmount:
		if voucher.DiscountValue > subtotal {
			return subtotal
		}
		return voucher.DiscountValue
	case domain.DiscountTypeFreeShipping:
		return shippingCost
	default:
		return 0
	}
}

func (s *voucherService) IncrementUsage(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("%w: voucher code is required", ErrVoucherInvalidInput)
	}
	if _, err := s.vouchers.IncrementUsage(ctx, code, 1); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *voucherService) normaliseVoucher(voucher Voucher) (Voucher, error) {
	voucher.Code = strings.ToUpper(strings.TrimSpace(voucher.Code))
	if voucher.Code == "" {
		return Voucher{}, fmt.Errorf("%w: voucher code is required", ErrVoucherInvalidInput)
	}

	switch voucher.DiscountType {
	case domain.DiscountTypePercentage:
		if voucher.DiscountValue <= 0 || voucher.DiscountValue > 100 {
			return Voucher{}, fmt.Errorf("%w: percentage must be between 1 and 100", ErrVoucherInvalidInput)
		}
	case domain.DiscountTypeFixedAmount:
		if voucher.DiscountValue <= 0 {
			return Voucher{}, fmt.Errorf("%w: discount amount must be > 0", ErrVoucherInvalidInput)
		}
	case domain.DiscountTypeFreeShipping:
	default:
		return Voucher{}, fmt.Errorf("%w: unknown discount type %q", ErrVoucherInvalidInput, voucher.DiscountType)
	}

	if voucher.ValidUntil.Before(voucher.ValidFrom) {
		return Voucher{}, fmt.Errorf("%w: validity window ends before it starts", ErrVoucherInvalidInput)
	}
	if voucher.MinOrderValue < 0 {
		return Voucher{}, fmt.Errorf("%w: minimum order value cannot be negative", ErrVoucherInvalidInput)
	}
	if voucher.UsagePerUser <= 0 {
		voucher.UsagePerUser = 1
	}

	return voucher, nil
}

func (s *voucherService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrVoucherNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrVoucherConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("voucher: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *voucherService) now() time.Time {
	return s.clock()
}
