package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/lumen-eyewear/api/internal/platform/firestore"
	"github.com/lumen-eyewear/api/internal/repositories"
)

type txContextKey struct{}

func withTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// Registry bundles the Firestore-backed repositories and implements the
// transactional unit of work. RunInTx stashes the live transaction in the
// context so repository reads and writes issued inside the callback join the
// same Firestore transaction.
type Registry struct {
	provider *pfirestore.Provider

	orders      *OrderRepository
	variants    *VariantRepository
	inventory   *InventoryRepository
	vouchers    *VoucherRepository
	importNotes *ImportNoteRepository
	counters    *CounterRepository
	health      repositories.HealthRepository
}

// NewRegistry wires the Firestore repositories against a shared provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	variants, err := NewVariantRepository(provider)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, err
	}
	vouchers, err := NewVoucherRepository(provider)
	if err != nil {
		return nil, err
	}
	importNotes, err := NewImportNoteRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:    provider,
		orders:      orders,
		variants:    variants,
		inventory:   inventory,
		vouchers:    vouchers,
		importNotes: importNotes,
		counters:    counters,
		health:      health,
	}, nil
}

// RunInTx executes fn inside one Firestore transaction. Nested calls reuse
// the transaction already carried by the context.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(withTx(ctx, tx))
	})
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository           { return r.orders }
func (r *Registry) Variants() repositories.VariantRepository       { return r.variants }
func (r *Registry) Inventory() repositories.InventoryRepository    { return r.inventory }
func (r *Registry) Vouchers() repositories.VoucherRepository       { return r.vouchers }
func (r *Registry) ImportNotes() repositories.ImportNoteRepository { return r.importNotes }
func (r *Registry) Counters() repositories.CounterRepository       { return r.counters }
func (r *Registry) Health() repositories.HealthRepository          { return r.health }
