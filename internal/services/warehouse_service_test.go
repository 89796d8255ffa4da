package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/lumen-eyewear/api/internal/domain"
)

type warehouseFixture struct {
	notes     *stubImportNoteRepo
	counters  *stubCounterRepo
	inventory *stubInventoryService
	svc       WarehouseService
}

func newWarehouseFixture(t *testing.T, notes ...domain.ImportNote) *warehouseFixture {
	t.Helper()

	f := &warehouseFixture{
		notes:     &stubImportNoteRepo{notes: make(map[string]domain.ImportNote)},
		counters:  &stubCounterRepo{},
		inventory: &stubInventoryService{},
	}
	for _, note := range notes {
		f.notes.notes[note.ID] = note
	}

	svc, err := NewWarehouseService(WarehouseServiceDeps{
		ImportNotes: f.notes,
		Counters:    f.counters,
		Inventory:   f.inventory,
		Clock:       testClock,
		IDGenerator: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewWarehouseService: %v", err)
	}
	f.svc = svc
	return f
}

func draftNote(id string) domain.ImportNote {
	return domain.ImportNote{
		ID:     id,
		Number: "IMP-000042",
		Status: domain.ImportNoteStatusDraft,
		Items: []domain.ImportNoteItem{
			{VariantID: "var_frame", Quantity: 20, UnitCost: 150_000},
			{VariantID: "var_lens", Quantity: 50, UnitCost: 40_000},
		},
		CreatedBy: "staff_1",
		CreatedAt: testClock().Add(-time.Hour),
		UpdatedAt: testClock().Add(-time.Hour),
	}
}

func TestCreateImportNote(t *testing.T) {
	f := newWarehouseFixture(t)

	note, err := f.svc.CreateImportNote(context.Background(), CreateImportNoteCommand{
		Items:   []domain.ImportNoteItem{{VariantID: "var_frame", Quantity: 20, UnitCost: 150_000}},
		ActorID: " staff_1 ",
	})
	if err != nil {
		t.Fatalf("CreateImportNote: %v", err)
	}
	if note.Status != domain.ImportNoteStatusDraft {
		t.Fatalf("status = %s, want DRAFT", note.Status)
	}
	if note.Number != "IMP-000001" {
		t.Fatalf("number = %s, want IMP-000001", note.Number)
	}
	if !strings.HasPrefix(note.ID, "imp_") {
		t.Fatalf("id = %s, want imp_ prefix", note.ID)
	}
	if note.CreatedBy != "staff_1" {
		t.Fatalf("createdBy = %q, want trimmed actor", note.CreatedBy)
	}
	if len(f.notes.inserted) != 1 {
		t.Fatalf("inserted notes = %d, want 1", len(f.notes.inserted))
	}
}

func TestCreateImportNoteValidation(t *testing.T) {
	f := newWarehouseFixture(t)

	cases := []struct {
		name  string
		items []domain.ImportNoteItem
	}{
		{"no items", nil},
		{"blank variant", []domain.ImportNoteItem{{VariantID: " ", Quantity: 1}}},
		{"zero quantity", []domain.ImportNoteItem{{VariantID: "var_frame", Quantity: 0}}},
		{"negative cost", []domain.ImportNoteItem{{VariantID: "var_frame", Quantity: 1, UnitCost: -1}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateImportNote(context.Background(), CreateImportNoteCommand{Items: tc.items}); !errors.Is(err, ErrImportNoteInvalidInput) {
				t.Fatalf("err = %v, want ErrImportNoteInvalidInput", err)
			}
		})
	}
}

func TestCompleteImportNoteAppliesStock(t *testing.T) {
	f := newWarehouseFixture(t, draftNote("imp_1"))

	note, err := f.svc.CompleteImportNote(context.Background(), ImportNoteActionCommand{NoteID: "imp_1", ActorID: "staff_1"})
	if err != nil {
		t.Fatalf("CompleteImportNote: %v", err)
	}
	if note.Status != domain.ImportNoteStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", note.Status)
	}
	if note.CompletedAt == nil || !note.CompletedAt.Equal(testClock()) {
		t.Fatalf("completedAt = %v", note.CompletedAt)
	}

	if len(f.inventory.restored) != 1 {
		t.Fatalf("restorations = %d, want 1", len(f.inventory.restored))
	}
	restore := f.inventory.restored[0]
	if restore.Type != domain.InventoryTransactionImport || restore.TransactionID != "IMP-000042" || !restore.Once {
		t.Fatalf("restoration = %+v", restore)
	}
	if len(restore.Lines) != 2 || restore.Lines[0].Quantity != 20 || restore.Lines[1].Quantity != 50 {
		t.Fatalf("restoration lines = %+v", restore.Lines)
	}
}

func TestCompleteImportNoteRequiresDraft(t *testing.T) {
	completed := draftNote("imp_1")
	completed.Status = domain.ImportNoteStatusCompleted
	f := newWarehouseFixture(t, completed)

	if _, err := f.svc.CompleteImportNote(context.Background(), ImportNoteActionCommand{NoteID: "imp_1"}); !errors.Is(err, ErrImportNoteInvalidState) {
		t.Fatalf("err = %v, want ErrImportNoteInvalidState", err)
	}
	if len(f.inventory.restored) != 0 {
		t.Fatalf("stock applied for a completed note")
	}
}

func TestCompleteImportNoteStockFailureKeepsDraft(t *testing.T) {
	f := newWarehouseFixture(t, draftNote("imp_1"))
	f.inventory.restoreEr = ErrInventoryVariantNotFound

	if _, err := f.svc.CompleteImportNote(context.Background(), ImportNoteActionCommand{NoteID: "imp_1"}); !errors.Is(err, ErrInventoryVariantNotFound) {
		t.Fatalf("err = %v, want ledger failure", err)
	}
	if got := f.notes.notes["imp_1"].Status; got != domain.ImportNoteStatusDraft {
		t.Fatalf("status = %s, want DRAFT untouched", got)
	}
}

func TestCancelImportNote(t *testing.T) {
	f := newWarehouseFixture(t, draftNote("imp_1"))

	note, err := f.svc.CancelImportNote(context.Background(), ImportNoteActionCommand{NoteID: "imp_1", ActorID: "staff_1"})
	if err != nil {
		t.Fatalf("CancelImportNote: %v", err)
	}
	if note.Status != domain.ImportNoteStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", note.Status)
	}
	if len(f.inventory.restored) != 0 {
		t.Fatalf("cancellation touched stock")
	}
}

func TestCancelImportNoteRequiresDraft(t *testing.T) {
	cancelled := draftNote("imp_1")
	cancelled.Status = domain.ImportNoteStatusCancelled
	f := newWarehouseFixture(t, cancelled)

	if _, err := f.svc.CancelImportNote(context.Background(), ImportNoteActionCommand{NoteID: "imp_1"}); !errors.Is(err, ErrImportNoteInvalidState) {
		t.Fatalf("err = %v, want ErrImportNoteInvalidState", err)
	}
}

func TestGetImportNoteNotFound(t *testing.T) {
	f := newWarehouseFixture(t)

	if _, err := f.svc.GetImportNote(context.Background(), "imp_ghost"); !errors.Is(err, ErrImportNoteNotFound) {
		t.Fatalf("err = %v, want ErrImportNoteNotFound", err)
	}
	if _, err := f.svc.GetImportNote(context.Background(), "  "); !errors.Is(err, ErrImportNoteInvalidInput) {
		t.Fatalf("err = %v, want ErrImportNoteInvalidInput", err)
	}
}
