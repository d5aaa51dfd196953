package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tiendaverde/catalogo/internal/domain"
)

// InsufficientStockError names the first product whose requested quantity
// exceeds available stock. The checkout error message must tell the customer
// which product ran out and how many units are left.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d requested, %d available", e.ProductName, e.Requested, e.Available)
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists an order and reserves its stock in one transaction.
//
// All inventory rows for the order's products are locked up front (in product
// ID order, so two overlapping checkouts take their locks in the same
// sequence), every line is validated against the locked quantities, and only
// then is any stock decremented. A shortfall on any line aborts with
// *InsufficientStockError and rolls the transaction back, leaving every
// inventory row untouched and no order behind. Row locks serialize competing
// checkouts: of two simultaneous orders for the last units, exactly one
// commits.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	productIDs := make([]int64, 0, len(order.Lines))
	requested := make(map[int64]*domain.OrderLine, len(order.Lines))
	for i := range order.Lines {
		line := &order.Lines[i]
		productIDs = append(productIDs, line.ProductID)
		requested[line.ProductID] = line
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT i.product_id, i.quantity, p.name
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.product_id = ANY($1)
		ORDER BY i.product_id
		FOR UPDATE OF i
	`, pq.Array(productIDs))
	if err != nil {
		return err
	}

	available := make(map[int64]int, len(productIDs))
	names := make(map[int64]string, len(productIDs))
	for rows.Next() {
		var productID int64
		var quantity int
		var name string
		if err := rows.Scan(&productID, &quantity, &name); err != nil {
			_ = rows.Close()
			return err
		}
		available[productID] = quantity
		names[productID] = name
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, productID := range productIDs {
		line := requested[productID]
		quantity, ok := available[productID]
		if !ok || quantity < line.Quantity {
			name := names[productID]
			if name == "" {
				name = line.ProductName
			}
			return &InsufficientStockError{
				ProductID:   productID,
				ProductName: name,
				Requested:   line.Quantity,
				Available:   quantity,
			}
		}
	}

	for _, productID := range productIDs {
		line := requested[productID]
		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = quantity - $2 WHERE product_id = $1
		`, productID, line.Quantity); err != nil {
			return err
		}
	}

	order.ID = uuid.New().String()
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, phone, address, payment_method, payment_status, status, total, seen_by_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, order.ID, order.CustomerName, order.Phone, order.Address, order.PaymentMethod,
		order.PaymentStatus, order.Status, order.Total, order.SeenByAdmin, order.CreatedAt); err != nil {
		return err
	}

	for _, line := range order.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), order.ID, line.ProductID, line.Quantity, line.UnitPrice, line.Subtotal); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_name, phone, address, payment_method, payment_status, status, total, seen_by_admin, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.CustomerName, &order.Phone, &order.Address, &order.PaymentMethod,
		&order.PaymentStatus, &order.Status, &order.Total, &order.SeenByAdmin, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT l.product_id, p.name, l.quantity, l.unit_price, l.subtotal
		FROM order_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.order_id = $1
		ORDER BY l.product_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// ListFilter narrows the admin order listing. Zero values mean no filter.
type ListFilter struct {
	From          time.Time
	To            time.Time
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
}

func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	query := `
		SELECT id, customer_name, phone, address, payment_method, payment_status, status, total, seen_by_admin, created_at, updated_at
		FROM orders
	`
	var conditions []string
	var args []any

	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CustomerName, &order.Phone, &order.Address, &order.PaymentMethod,
			&order.PaymentStatus, &order.Status, &order.Total, &order.SeenByAdmin, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.Lines = []domain.OrderLine{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	lineRows, err := r.db.QueryContext(ctx, `
		SELECT l.order_id, l.product_id, p.name, l.quantity, l.unit_price, l.subtotal
		FROM order_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.order_id = ANY($1)
		ORDER BY l.product_id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = lineRows.Close() }()

	for lineRows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := lineRows.Scan(&orderID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Lines = append(order.Lines, line)
	}

	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *orderMap[id])
	}

	return result, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// MarkAllSeen flags every unseen order as seen by the admin. The admin order
// listing calls this, matching the shop's "new orders" badge semantics.
func (r *OrderRepository) MarkAllSeen(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET seen_by_admin = TRUE WHERE seen_by_admin = FALSE
	`)
	return err
}

func (r *OrderRepository) CountUnseen(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE seen_by_admin = FALSE
	`).Scan(&count)
	return count, err
}
