package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tiendaverde/catalogo/internal/domain"
)

// ErrProductNotFound is returned when a cart entry references a product that
// no longer exists in the catalog.
var ErrProductNotFound = errors.New("product not found")

// ProductStore is the slice of the catalog the cart needs.
type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
}

// StockReader reports available stock for a product.
type StockReader interface {
	GetStock(ctx context.Context, productID int64) (*domain.StockLevel, error)
}

type Item struct {
	Product  domain.Product `json:"product"`
	Quantity int            `json:"quantity"`
	// UnitPrice is the snapshot taken when the entry was created, not the
	// product's current price.
	UnitPrice int64 `json:"unit_price"`
	Subtotal  int64 `json:"subtotal"`
}

// FreeShippingThreshold is the cart total, in centavos, at which shipping
// becomes free (60,000.00 COP).
const FreeShippingThreshold int64 = 6000000

type View struct {
	Items []Item `json:"items"`
	Total int64  `json:"total"`
	Count int    `json:"count"`
	// RemainingForFreeShipping is how much more the customer needs to add
	// to reach FreeShippingThreshold, zero once the total is past it.
	RemainingForFreeShipping int64 `json:"remaining_for_free_shipping"`
}

// Resolve joins cart entries with their products and computes subtotals from
// the snapshotted prices. Entries in the legacy quantity-only shape carry no
// price; those are backfilled from the current product price and written back
// into the cart, which is why Resolve may mutate it. Callers must persist the
// cart afterwards if dirty is true.
func Resolve(ctx context.Context, c *domain.Cart, products ProductStore) (*View, bool, error) {
	ids := make([]int64, 0, len(c.Items))
	for id := range c.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	view := &View{Items: []Item{}}
	dirty := false

	for _, id := range ids {
		entry := c.Items[id]

		product, err := products.GetByID(ctx, id)
		if err != nil {
			return nil, dirty, err
		}
		if product == nil {
			return nil, dirty, fmt.Errorf("resolve cart entry %d: %w", id, ErrProductNotFound)
		}

		if entry.UnitPrice == 0 {
			entry.UnitPrice = product.Price
			c.Items[id] = entry
			dirty = true
		}

		subtotal := int64(entry.Quantity) * entry.UnitPrice
		view.Items = append(view.Items, Item{
			Product:   *product,
			Quantity:  entry.Quantity,
			UnitPrice: entry.UnitPrice,
			Subtotal:  subtotal,
		})
		view.Total += subtotal
		view.Count += entry.Quantity
	}

	if view.Total < FreeShippingThreshold {
		view.RemainingForFreeShipping = FreeShippingThreshold - view.Total
	}

	return view, dirty, nil
}
