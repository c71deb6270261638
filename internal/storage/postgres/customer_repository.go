package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type customerRepository struct {
	db    *sql.DB
	rules domain.CustomerBusinessRules
	opts  []domain.Option
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store, rules domain.CustomerBusinessRules, opts ...domain.Option) domain.CustomerRepository {
	return &customerRepository{db: store.DB(), rules: rules, opts: opts}
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		snapshot          domain.CustomerSnapshot
		shipping, billing sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, shipping_address, billing_address
		FROM customers
		WHERE id = $1
	`, id).Scan(&snapshot.ID, &snapshot.Name, &shipping, &billing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, id)
		}
		return nil, fmt.Errorf("select customer: %w", err)
	}
	if snapshot.ShippingAddress, err = decodeAddress(shipping); err != nil {
		return nil, err
	}
	if snapshot.BillingAddress, err = decodeAddress(billing); err != nil {
		return nil, err
	}

	orders, err := r.loadOrders(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot.Orders = orders

	return domain.RestoreCustomer(snapshot, &r.rules, r.opts...)
}

func (r *customerRepository) loadOrders(ctx context.Context, customerID string) ([]domain.OrderSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_date, shipping_address, billing_address
		FROM orders
		WHERE customer_id = $1
		ORDER BY position
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.OrderSnapshot, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			order             domain.OrderSnapshot
			shipping, billing sql.NullString
		)
		if err := rows.Scan(&order.ID, &order.OrderDate, &shipping, &billing); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.OrderDate = order.OrderDate.UTC()
		if order.ShippingAddress, err = decodeAddress(shipping); err != nil {
			return nil, err
		}
		if order.BillingAddress, err = decodeAddress(billing); err != nil {
			return nil, err
		}
		order.Items = make([]domain.OrderItem, 0)
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.product, oi.quantity, oi.price
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.customer_id = $1
		ORDER BY o.position, oi.position
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID  string
			product  string
			quantity int
			price    decimal.Decimal
		)
		if err := itemRows.Scan(&orderID, &product, &quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		item, err := domain.NewOrderItem(product, quantity, price)
		if err != nil {
			return nil, fmt.Errorf("decode order item of %s: %w", orderID, err)
		}
		pos, ok := index[orderID]
		if !ok {
			continue
		}
		orders[pos].Items = append(orders[pos].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}

	return orders, nil
}

// Save выполняет upsert клиента, заменяет строки заказов и позиций
// и добавляет неотправленные события в domain_events в одной транзакции.
func (r *customerRepository) Save(ctx context.Context, customer *domain.Customer) error {
	if customer == nil {
		return fmt.Errorf("%w: customer", domain.ErrNullArgument)
	}
	msgs, err := domain.NewOutboxMessages(customer.DomainEvents())
	if err != nil {
		return fmt.Errorf("build outbox messages: %w", err)
	}
	snapshot := customer.Snapshot()

	shipping, err := encodeAddress(snapshot.ShippingAddress)
	if err != nil {
		return err
	}
	billing, err := encodeAddress(snapshot.BillingAddress)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err = inTx(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customers (id, name, shipping_address, billing_address, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$5)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    shipping_address = EXCLUDED.shipping_address,
			    billing_address = EXCLUDED.billing_address,
			    updated_at = EXCLUDED.updated_at
		`, snapshot.ID, snapshot.Name, shipping, billing, now); err != nil {
			return fmt.Errorf("upsert customer: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE customer_id = $1`, snapshot.ID); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		for pos, order := range snapshot.Orders {
			if err := insertOrder(ctx, tx, snapshot.ID, pos, order); err != nil {
				return err
			}
		}

		for _, msg := range msgs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO domain_events (
					id, aggregate_type, aggregate_id, event_type, payload, occurred_on
				) VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (id) DO NOTHING
			`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, string(msg.Payload), msg.OccurredOn); err != nil {
				return fmt.Errorf("insert domain event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save customer %s: %w", snapshot.ID, err)
	}
	return nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, customerID string, pos int, order domain.OrderSnapshot) error {
	shipping, err := encodeAddress(order.ShippingAddress)
	if err != nil {
		return err
	}
	billing, err := encodeAddress(order.BillingAddress)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, position, order_date, shipping_address, billing_address)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, order.ID, customerID, pos, order.OrderDate, shipping, billing); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: order %s belongs to another customer", domain.ErrInvalidState, order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for itemPos, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, itemPos, item.Product(), item.Quantity(), item.Price()); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func encodeAddress(addr *domain.Address) (sql.NullString, error) {
	if addr == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(addr)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode address: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeAddress(raw sql.NullString) (*domain.Address, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var addr domain.Address
	if err := json.Unmarshal([]byte(raw.String), &addr); err != nil {
		return nil, fmt.Errorf("decode address column: %w", err)
	}
	return &addr, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
