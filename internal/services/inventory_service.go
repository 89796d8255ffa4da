package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
	"github.com/lumen-eyewear/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals a malformed stock mutation request.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryVariantNotFound indicates a line references an unknown variant.
	ErrInventoryVariantNotFound = errors.New("inventory: variant not found")
	// ErrInventoryInsufficientStock indicates at least one line could not be
	// satisfied. No stock was touched.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
)

// InventoryServiceDeps bundles collaborators required to construct the inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	inventory repositories.InventoryRepository
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		inventory: deps.Inventory,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Deduct removes stock for every line of the command as one atomic unit,
// re-checking availability under the lock.
func (s *inventoryService) Deduct(ctx context.Context, cmd StockMutationCommand) ([]InventoryLog, error) {
	req, err := s.buildRequest(cmd)
	if err != nil {
		return nil, err
	}

	logs, err := s.inventory.Deduct(ctx, req)
	if err != nil {
		return nil, s.mapLedgerError(err)
	}

	s.logger(ctx, "inventory.deducted", map[string]any{
		"transaction": req.TransactionID,
		"lines":       len(req.Lines),
	})
	return logs, nil
}

// Restore returns stock for every line of the command as one atomic unit.
func (s *inventoryService) Restore(ctx context.Context, cmd StockMutationCommand) ([]InventoryLog, error) {
	req, err := s.buildRequest(cmd)
	if err != nil {
		return nil, err
	}

	logs, err := s.inventory.Restore(ctx, req)
	if err != nil {
		return nil, s.mapLedgerError(err)
	}

	s.logger(ctx, "inventory.restored", map[string]any{
		"transaction": req.TransactionID,
		"lines":       len(req.Lines),
	})
	return logs, nil
}

func (s *inventoryService) ListLogs(ctx context.Context, variantID string, pager Pagination) (domain.CursorPage[InventoryLog], error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.CursorPage[InventoryLog]{}, fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}

	page, err := s.inventory.ListLogs(ctx, variantID, pager)
	if err != nil {
		return domain.CursorPage[InventoryLog]{}, s.mapLedgerError(err)
	}
	return page, nil
}

func (s *inventoryService) buildRequest(cmd StockMutationCommand) (repositories.StockMutationRequest, error) {
	if len(cmd.Lines) == 0 {
		return repositories.StockMutationRequest{}, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}
	txRef := strings.TrimSpace(cmd.TransactionID)
	if txRef == "" {
		return repositories.StockMutationRequest{}, fmt.Errorf("%w: transaction id is required", ErrInventoryInvalidInput)
	}
	switch cmd.Type {
	case domain.InventoryTransactionImport, domain.InventoryTransactionOrder,
		domain.InventoryTransactionRefund, domain.InventoryTransactionAdjustment:
	default:
		return repositories.StockMutationRequest{}, fmt.Errorf("%w: unknown transaction type %q", ErrInventoryInvalidInput, cmd.Type)
	}

	return repositories.StockMutationRequest{
		Lines:         cmd.Lines,
		Type:          cmd.Type,
		TransactionID: txRef,
		Actor:         strings.TrimSpace(cmd.ActorID),
		Now:           s.clock(),
		Once:          cmd.Once,
	}, nil
}

func (s *inventoryService) mapLedgerError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, invErr.Message)
		case repositories.InventoryErrorVariantNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryVariantNotFound, invErr.Message)
		case repositories.InventoryErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
		}
	}

	return err
}
