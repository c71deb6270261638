package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

type customerRepository struct {
	client *goredis.Client
	rules  domain.CustomerBusinessRules
	opts   []domain.Option
}

// NewCustomerRepository создаёт Redis-реализацию CustomerRepository.
func NewCustomerRepository(store *Store, rules domain.CustomerBusinessRules, opts ...domain.Option) domain.CustomerRepository {
	return &customerRepository{client: store.Client(), rules: rules, opts: opts}
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, customerKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get customer: %w", err)
	}

	var snapshot domain.CustomerSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal customer snapshot: %w", err)
	}

	return domain.RestoreCustomer(snapshot, &r.rules, r.opts...)
}

// saveScript пишет снимок и добавляет в outbox только новые события.
// HSETNX защищает от повторной вставки, ZADD выполняется лишь для добавленных записей.
// KEYS: снимок, hash сообщений, индекс pending. ARGV: снимок, затем тройки id/запись/score.
var saveScript = goredis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1])
local added = 0
for i = 2, #ARGV, 3 do
  if redis.call('HSETNX', KEYS[2], ARGV[i], ARGV[i + 1]) == 1 then
    redis.call('ZADD', KEYS[3], ARGV[i + 2], ARGV[i])
    added = added + 1
  end
end
return added
`)

// Save атомарно записывает снимок и новые события outbox.
// Уже сохранённые события (по id) повторно не добавляются.
func (r *customerRepository) Save(ctx context.Context, customer *domain.Customer) error {
	if customer == nil {
		return fmt.Errorf("%w: customer", domain.ErrNullArgument)
	}

	msgs, err := domain.NewOutboxMessages(customer.DomainEvents())
	if err != nil {
		return fmt.Errorf("build outbox messages: %w", err)
	}
	records, err := encodeRecords(msgs)
	if err != nil {
		return err
	}
	data, err := json.Marshal(customer.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal customer snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	args := make([]any, 0, 1+3*len(msgs))
	args = append(args, string(data))
	for i, msg := range msgs {
		args = append(args, msg.ID, records[i], outboxScore(msg))
	}

	keys := []string{customerKey(customer.ID()), outboxMessagesKey, outboxPendingKey}
	if err := saveScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("redis save customer: %w", err)
	}
	return nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
