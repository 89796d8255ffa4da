package firestore

import (
	"context"
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

const importNotesCollection = "importNotes"

// ImportNoteRepository stores warehouse receiving notes.
type ImportNoteRepository struct {
	provider *pfirestore.Provider
	notes    *pfirestore.BaseRepository[importNoteDocument]
}

// NewImportNoteRepository constructs a Firestore-backed import note store.
func NewImportNoteRepository(provider *pfirestore.Provider) (*ImportNoteRepository, error) {
	if provider == nil {
		return nil, errors.New("import note repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[importNoteDocument](provider, importNotesCollection, nil, nil)
	return &ImportNoteRepository{provider: provider, notes: base}, nil
}

func (r *ImportNoteRepository) Insert(ctx context.Context, note domain.ImportNote) error {
	if r == nil || r.provider == nil {
		return errors.New("import note repository not initialised")
	}
	if strings.TrimSpace(note.ID) == "" {
		return pfirestore.WrapError("importNotes.insert", errors.New("import note id is required"))
	}
	ref, err := r.notes.DocumentRef(ctx, note.ID)
	if err != nil {
		return err
	}
	doc := newImportNoteDocument(note)
	if tx, ok := txFromContext(ctx); ok {
		return pfirestore.WrapError("importNotes.insert", tx.Create(ref, doc))
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("importNotes.insert", err)
}

func (r *ImportNoteRepository) Update(ctx context.Context, note domain.ImportNote) error {
	if r == nil || r.provider == nil {
		return errors.New("import note repository not initialised")
	}
	if strings.TrimSpace(note.ID) == "" {
		return pfirestore.WrapError("importNotes.update", errors.New("import note id is required"))
	}
	ref, err := r.notes.DocumentRef(ctx, note.ID)
	if err != nil {
		return err
	}
	doc := newImportNoteDocument(note)
	if tx, ok := txFromContext(ctx); ok {
		return pfirestore.WrapError("importNotes.update", tx.Set(ref, doc))
	}
	_, err = ref.Set(ctx, doc)
	return pfirestore.WrapError("importNotes.update", err)
}

func (r *ImportNoteRepository) FindByID(ctx context.Context, noteID string) (domain.ImportNote, error) {
	if r == nil || r.notes == nil {
		return domain.ImportNote{}, errors.New("import note repository not initialised")
	}
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return domain.ImportNote{}, pfirestore.WrapError("importNotes.get", errors.New("import note id is required"))
	}
	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.notes.DocumentRef(ctx, noteID)
		if err != nil {
			return domain.ImportNote{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.ImportNote{}, pfirestore.WrapError("importNotes.get", err)
		}
		var doc importNoteDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.ImportNote{}, fmt.Errorf("decode import note %s: %w", noteID, err)
		}
		return doc.toDomain(noteID), nil
	}
	doc, err := r.notes.Get(ctx, noteID)
	if err != nil {
		return domain.ImportNote{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ImportNoteRepository) List(ctx context.Context, filter repositories.ImportNoteListFilter) (domain.CursorPage[domain.ImportNote], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.ImportNote]{}, errors.New("import note repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultLogPageSize
	}
	if pageSize > maxLogPageSize {
		pageSize = maxLogPageSize
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.ImportNote]{}, pfirestore.WrapError("importNotes.list", err)
	}

	query := client.Collection(importNotesCollection).Query
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.ImportNote]{}, pfirestore.WrapError("importNotes.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var notes []domain.ImportNote
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.ImportNote]{}, pfirestore.WrapError("importNotes.list", err)
		}
		var doc importNoteDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.ImportNote]{}, fmt.Errorf("decode import note %s: %w", snap.Ref.ID, err)
		}
		notes = append(notes, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(notes) > pageSize
	if hasMore {
		notes = notes[:pageSize]
	}
	var nextToken string
	if hasMore && len(notes) > 0 {
		last := notes[len(notes)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.ImportNote]{}, pfirestore.WrapError("importNotes.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.ImportNote]{Items: notes, NextPageToken: nextToken}, nil
}

type importNoteItemDocument struct {
	VariantID string `firestore:"variantId"`
	Quantity  int64  `firestore:"quantity"`
	UnitCost  int64  `firestore:"unitCost"`
}

type importNoteDocument struct {
	Number      string                   `firestore:"number"`
	Status      string                   `firestore:"status"`
	Items       []importNoteItemDocument `firestore:"items"`
	CreatedBy   string                   `firestore:"createdBy,omitempty"`
	CompletedAt *time.Time               `firestore:"completedAt,omitempty"`
	CreatedAt   time.Time                `firestore:"createdAt"`
	UpdatedAt   time.Time                `firestore:"updatedAt"`
}

func newImportNoteDocument(note domain.ImportNote) importNoteDocument {
	items := make([]importNoteItemDocument, 0, len(note.Items))
	for _, item := range note.Items {
		items = append(items, importNoteItemDocument{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		})
	}
	return importNoteDocument{
		Number:      note.Number,
		Status:      string(note.Status),
		Items:       items,
		CreatedBy:   note.CreatedBy,
		CompletedAt: note.CompletedAt,
		CreatedAt:   note.CreatedAt.UTC(),
		UpdatedAt:   note.UpdatedAt.UTC(),
	}
}

func (d importNoteDocument) toDomain(id string) domain.ImportNote {
	items := make([]domain.ImportNoteItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.ImportNoteItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		})
	}
	return domain.ImportNote{
		ID:          id,
		Number:      d.Number,
		Status:      domain.ImportNoteStatus(d.Status),
		Items:       items,
		CreatedBy:   d.CreatedBy,
		CompletedAt: d.CompletedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
