package domain

import (
	"encoding/json"
	"strconv"
)

// CartEntry is the canonical cart entry shape: quantity plus the unit price
// snapshotted when the product was first added. Earlier versions of the shop
// stored entries as bare integers (quantity only); UnmarshalJSON still accepts
// that shape so carts written before the migration keep working. A legacy
// entry has UnitPrice 0 until the cart is resolved against the catalog.
type CartEntry struct {
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

func (e *CartEntry) UnmarshalJSON(data []byte) error {
	if n, err := strconv.Atoi(string(data)); err == nil {
		e.Quantity = n
		e.UnitPrice = 0
		return nil
	}

	type entry CartEntry
	var v entry
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = CartEntry(v)
	return nil
}

// Cart is the session-scoped selection of products. It is a plain value
// object: handlers load it from the session store, mutate it, and persist it
// back after every mutation.
type Cart struct {
	Items map[int64]CartEntry `json:"items"`
}

func NewCart() *Cart {
	return &Cart{Items: make(map[int64]CartEntry)}
}

// Add merges qty units into the entry for productID, snapshotting unitPrice
// on first add. The price of an existing entry is left untouched.
func (c *Cart) Add(productID int64, unitPrice int64, qty int) {
	if qty <= 0 {
		return
	}

	entry, ok := c.Items[productID]
	if !ok {
		c.Items[productID] = CartEntry{Quantity: qty, UnitPrice: unitPrice}
		return
	}

	entry.Quantity += qty
	c.Items[productID] = entry
}

// Decrement reduces the entry by qty units, deleting it when the quantity
// reaches zero or below.
func (c *Cart) Decrement(productID int64, qty int) {
	entry, ok := c.Items[productID]
	if !ok {
		return
	}

	entry.Quantity -= qty
	if entry.Quantity <= 0 {
		delete(c.Items, productID)
		return
	}
	c.Items[productID] = entry
}

func (c *Cart) Remove(productID int64) {
	delete(c.Items, productID)
}

func (c *Cart) Clear() {
	c.Items = make(map[int64]CartEntry)
}

// Count returns the total number of units across all entries.
func (c *Cart) Count() int {
	total := 0
	for _, entry := range c.Items {
		total += entry.Quantity
	}
	return total
}

// Quantity returns the stored quantity for productID, 0 when absent.
func (c *Cart) Quantity(productID int64) int {
	return c.Items[productID].Quantity
}

func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}
