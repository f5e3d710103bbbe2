package domain

import "time"

// Cart is the stored, unresolved cart. One per user.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Items     []CartLine `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// CartLine keeps the product reference exactly as the client sent it.
// It is resolved at read time only.
type CartLine struct {
	ProductID string `bson:"product_id" json:"product_id"`
	Quantity  int    `bson:"quantity" json:"quantity"`
}

// CartItem is the client-side hydrated line: product fields plus quantity.
type CartItem struct {
	Product
	Quantity int `json:"quantity"`
}

type ResolvedLine struct {
	ProductID string  `json:"product_id"`
	Product   Product `json:"product"`
	Quantity  int     `json:"quantity"`
	ItemTotal float64 `json:"item_total"`
}

// AggregatedCart is the priced view of a stored cart. Totals are derived and never stored.
type AggregatedCart struct {
	ID        string         `json:"id,omitempty"`
	UserID    string         `json:"user_id"`
	Items     []ResolvedLine `json:"items"`
	ItemCount int            `json:"item_count"`
	Subtotal  float64        `json:"subtotal"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Totals struct {
	ItemCount int
	Subtotal  float64
}

// ResolveTotals returns known when the caller already has the totals and
// computes them from items otherwise.
func ResolveTotals(items []ResolvedLine, known *Totals) Totals {
	if known != nil {
		return *known
	}
	var t Totals
	for _, item := range items {
		t.ItemCount += item.Quantity
		t.Subtotal += item.ItemTotal
	}
	return t
}

// CartItems converts resolved lines into client cart items.
func (c *AggregatedCart) CartItems() []CartItem {
	if c == nil {
		return nil
	}
	items := make([]CartItem, 0, len(c.Items))
	for _, line := range c.Items {
		items = append(items, CartItem{Product: line.Product, Quantity: line.Quantity})
	}
	return items
}
