package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

// customerRepositoryInMemory — in-memory реализация CustomerRepository поверх Store.
type customerRepositoryInMemory struct {
	store *Store
	rules domain.CustomerBusinessRules
	opts  []domain.Option
}

// NewCustomerRepository возвращает in-memory репозиторий для локальной разработки и тестов.
// rules и opts применяются к каждому восстановленному агрегату.
func NewCustomerRepository(store *Store, rules domain.CustomerBusinessRules, opts ...domain.Option) domain.CustomerRepository {
	if store == nil {
		store = NewStore()
	}
	return &customerRepositoryInMemory{store: store, rules: rules, opts: opts}
}

// GetByID восстанавливает клиента или возвращает ErrCustomerNotFound.
func (r *customerRepositoryInMemory) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	snapshot, ok := r.store.customers[id]
	if ok {
		snapshot = snapshot.Clone()
	}
	r.store.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, id)
	}
	return domain.RestoreCustomer(snapshot, &r.rules, r.opts...)
}

// Save перезаписывает снимок клиента и добавляет его события в outbox под одной блокировкой.
func (r *customerRepositoryInMemory) Save(ctx context.Context, customer *domain.Customer) error {
	if customer == nil {
		return fmt.Errorf("%w: customer", domain.ErrNullArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs, err := domain.NewOutboxMessages(customer.DomainEvents())
	if err != nil {
		return fmt.Errorf("build outbox messages: %w", err)
	}
	snapshot := customer.Snapshot()

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.customers[snapshot.ID] = snapshot
	r.store.appendOutboxLocked(msgs)
	return nil
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
