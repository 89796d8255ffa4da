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

const (
	importNoteIDPrefix = "imp_"
	importNoteCounter  = "importNotes"
)

var (
	// ErrImportNoteInvalidInput signals the caller provided invalid data.
	ErrImportNoteInvalidInput = errors.New("import note: invalid input")
	// ErrImportNoteNotFound indicates the note could not be located.
	ErrImportNoteNotFound = errors.New("import note: not found")
	// ErrImportNoteInvalidState indicates the note is not in a state that
	// allows the requested action.
	ErrImportNoteInvalidState = errors.New("import note: invalid state")
	// ErrImportNoteConflict indicates duplicates or concurrent updates.
	ErrImportNoteConflict = errors.New("import note: conflict")
)

// WarehouseServiceDeps bundles collaborators required to construct the warehouse service.
type WarehouseServiceDeps struct {
	ImportNotes repositories.ImportNoteRepository
	Counters    repositories.CounterRepository
	Inventory   InventoryService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type warehouseService struct {
	importNotes repositories.ImportNoteRepository
	counters    repositories.CounterRepository
	inventory   InventoryService
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewWarehouseService wires dependencies into a concrete WarehouseService implementation.
func NewWarehouseService(deps WarehouseServiceDeps) (WarehouseService, error) {
	if deps.ImportNotes == nil {
		return nil, errors.New("warehouse service: import note repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("warehouse service: counter repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("warehouse service: inventory service is required")
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

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &warehouseService{
		importNotes: deps.ImportNotes,
		counters:    deps.Counters,
		inventory:   deps.Inventory,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *warehouseService) CreateImportNote(ctx context.Context, cmd CreateImportNoteCommand) (ImportNote, error) {
	if len(cmd.Items) == 0 {
		return ImportNote{}, fmt.Errorf("%w: note must contain at least one item", ErrImportNoteInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.VariantID) == "" {
			return ImportNote{}, fmt.Errorf("%w: variant id is required", ErrImportNoteInvalidInput)
		}
		if item.Quantity <= 0 {
			return ImportNote{}, fmt.Errorf("%w: quantity for %s must be > 0", ErrImportNoteInvalidInput, item.VariantID)
		}
		if item.UnitCost < 0 {
			return ImportNote{}, fmt.Errorf("%w: unit cost for %s cannot be negative", ErrImportNoteInvalidInput, item.VariantID)
		}
	}

	seq, err := s.counters.Next(ctx, importNoteCounter, 1)
	if err != nil {
		return ImportNote{}, err
	}

	now := s.now()
	note := ImportNote{
		ID:        importNoteIDPrefix + s.newID(),
		Number:    fmt.Sprintf("IMP-%06d", seq),
		Status:    domain.ImportNoteStatusDraft,
		Items:     append([]ImportNoteItem(nil), cmd.Items...),
		CreatedBy: strings.TrimSpace(cmd.ActorID),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.importNotes.Insert(ctx, note); err != nil {
		return ImportNote{}, s.mapRepositoryError(err)
	}
	return note, nil
}

// CompleteImportNote applies the note's lines to stock through the ledger as
// one atomic batch, then marks the note completed.
func (s *warehouseService) CompleteImportNote(ctx context.Context, cmd ImportNoteActionCommand) (ImportNote, error) {
	note, err := s.loadNote(ctx, cmd.NoteID)
	if err != nil {
		return ImportNote{}, err
	}
	if note.Status != domain.ImportNoteStatusDraft {
		return ImportNote{}, fmt.Errorf("%w: note %s is %s", ErrImportNoteInvalidState, note.Number, note.Status)
	}

	lines := make([]repositories.StockLine, 0, len(note.Items))
	for _, item := range note.Items {
		lines = append(lines, repositories.StockLine{VariantID: item.VariantID, Quantity: item.Quantity})
	}

	if _, err := s.inventory.Restore(ctx, StockMutationCommand{
		Lines:         lines,
		Type:          domain.InventoryTransactionImport,
		TransactionID: note.Number,
		ActorID:       cmd.ActorID,
		Once:          true,
	}); err != nil {
		return ImportNote{}, err
	}

	now := s.now()
	note.Status = domain.ImportNoteStatusCompleted
	note.CompletedAt = &now
	note.UpdatedAt = now

	if err := s.importNotes.Update(ctx, note); err != nil {
		return ImportNote{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "warehouse.import.completed", map[string]any{
		"note":  note.Number,
		"lines": len(note.Items),
	})
	return note, nil
}

func (s *warehouseService) CancelImportNote(ctx context.Context, cmd ImportNoteActionCommand) (ImportNote, error) {
	note, err := s.loadNote(ctx, cmd.NoteID)
	if err != nil {
		return ImportNote{}, err
	}
	if note.Status != domain.ImportNoteStatusDraft {
		return ImportNote{}, fmt.Errorf("%w: note %s is %s", ErrImportNoteInvalidState, note.Number, note.Status)
	}

	note.Status = domain.ImportNoteStatusCancelled
	note.UpdatedAt = s.now()

	if err := s.importNotes.Update(ctx, note); err != nil {
		return ImportNote{}, s.mapRepositoryError(err)
	}
	return note, nil
}

func (s *warehouseService) GetImportNote(ctx context.Context, noteID string) (ImportNote, error) {
	return s.loadNote(ctx, noteID)
}

func (s *warehouseService) ListImportNotes(ctx context.Context, filter ImportNoteListFilter) (domain.CursorPage[ImportNote], error) {
	page, err := s.importNotes.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[ImportNote]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *warehouseService) loadNote(ctx context.Context, noteID string) (ImportNote, error) {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return ImportNote{}, fmt.Errorf("%w: note id is required", ErrImportNoteInvalidInput)
	}
	note, err := s.importNotes.FindByID(ctx, noteID)
	if err != nil {
		return ImportNote{}, s.mapRepositoryError(err)
	}
	return note, nil
}

func (s *warehouseService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrImportNoteNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrImportNoteConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("import note: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *warehouseService) now() time.Time {
	return s.clock()
}
