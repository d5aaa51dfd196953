// Package reports aggregates persisted orders into sales summaries and
// renders admin exports. Read-only: nothing here mutates state.
package reports

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Summary struct {
	TotalSales   int64        `json:"total_sales"`
	OrderCount   int          `json:"order_count"`
	AverageOrder int64        `json:"average_order"`
	TopProducts  []TopProduct `json:"top_products"`
}

type TopProduct struct {
	ProductName string `json:"product_name"`
	UnitsSold   int    `json:"units_sold"`
}

// OrderRow is one line of the sales export: the order plus the derived
// per-order unit count and average value per unit.
type OrderRow struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	Total        int64     `json:"total"`
	TotalItems   int       `json:"total_items"`
	AveragePer   int64     `json:"average_per_item"`
	CreatedAt    time.Time `json:"created_at"`
}

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// dateRange builds an optional created_at window. from/to may be zero.
func dateRange(from, to time.Time, args *[]any) string {
	clause := ""
	if !from.IsZero() {
		*args = append(*args, from)
		clause += fmt.Sprintf(" AND o.created_at >= $%d", len(*args))
	}
	if !to.IsZero() {
		*args = append(*args, to)
		clause += fmt.Sprintf(" AND o.created_at < $%d", len(*args))
	}
	return clause
}

func (r *ReportRepository) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	summary := &Summary{TopProducts: []TopProduct{}}

	var args []any
	window := dateRange(from, to, &args)

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(o.total), 0), COUNT(*), COALESCE(ROUND(AVG(o.total)), 0)
		FROM orders o
		WHERE TRUE`+window,
		args...,
	).Scan(&summary.TotalSales, &summary.OrderCount, &summary.AverageOrder)
	if err != nil {
		return nil, err
	}

	args = args[:0]
	window = dateRange(from, to, &args)

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.name, SUM(l.quantity) AS units
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		JOIN products p ON p.id = l.product_id
		WHERE TRUE`+window+`
		GROUP BY p.name
		ORDER BY units DESC, p.name
		LIMIT 5
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var top TopProduct
		if err := rows.Scan(&top.ProductName, &top.UnitsSold); err != nil {
			return nil, err
		}
		summary.TopProducts = append(summary.TopProducts, top)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summary, nil
}

func (r *ReportRepository) OrderRows(ctx context.Context, from, to time.Time) ([]OrderRow, error) {
	var args []any
	window := dateRange(from, to, &args)

	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.customer_name, o.phone, o.address, o.total,
		       COALESCE(SUM(l.quantity), 0) AS total_items,
		       o.created_at
		FROM orders o
		LEFT JOIN order_lines l ON l.order_id = o.id
		WHERE TRUE`+window+`
		GROUP BY o.id
		ORDER BY o.created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []OrderRow
	for rows.Next() {
		var row OrderRow
		if err := rows.Scan(&row.ID, &row.CustomerName, &row.Phone, &row.Address, &row.Total, &row.TotalItems, &row.CreatedAt); err != nil {
			return nil, err
		}
		if row.TotalItems > 0 {
			row.AveragePer = row.Total / int64(row.TotalItems)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
