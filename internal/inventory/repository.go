package inventory

import (
	"context"
	"database/sql"

	"github.com/tiendaverde/catalogo/internal/domain"
)

type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) ListAll(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.product_id, p.name, i.quantity
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var levels []domain.StockLevel
	for rows.Next() {
		var stock domain.StockLevel
		if err := rows.Scan(&stock.ProductID, &stock.ProductName, &stock.Quantity); err != nil {
			return nil, err
		}
		levels = append(levels, stock)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return levels, nil
}

func (r *InventoryRepository) GetStock(ctx context.Context, productID int64) (*domain.StockLevel, error) {
	stock := &domain.StockLevel{}

	err := r.db.QueryRowContext(ctx, `
		SELECT i.product_id, p.name, i.quantity
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.product_id = $1
	`, productID).Scan(&stock.ProductID, &stock.ProductName, &stock.Quantity)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return stock, nil
}

// SetQuantity is the admin absolute set. Checkout never calls this; stock
// decrements happen inside the checkout transaction.
func (r *InventoryRepository) SetQuantity(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE inventory SET quantity = $2 WHERE product_id = $1
	`, productID, quantity)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
