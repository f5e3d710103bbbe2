// Package api holds the JSON wire types shared by the HTTP server and the cart client.
package api

import (
	"time"

	"github.com/fjod/cartsync/internal/domain"
)

type SyncCartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SyncCartRequest struct {
	Items []SyncCartItem `json:"items"`
}

// Cart is the wire form of domain.AggregatedCart. Totals are pointers so a
// reader can tell "sent" from "absent" and recompute only when absent.
type Cart struct {
	ID        string                `json:"id,omitempty"`
	UserID    string                `json:"user_id"`
	Items     []domain.ResolvedLine `json:"items"`
	ItemCount *int                  `json:"item_count,omitempty"`
	Subtotal  *float64              `json:"subtotal,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type CartResponse struct {
	Cart *Cart `json:"cart"`
}

type ProductResponse struct {
	Product *domain.Product `json:"product"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func FromAggregated(c *domain.AggregatedCart) *Cart {
	if c == nil {
		return nil
	}
	items := c.Items
	if items == nil {
		items = []domain.ResolvedLine{}
	}
	count, subtotal := c.ItemCount, c.Subtotal
	return &Cart{
		ID:        c.ID,
		UserID:    c.UserID,
		Items:     items,
		ItemCount: &count,
		Subtotal:  &subtotal,
		UpdatedAt: c.UpdatedAt,
	}
}

// ToAggregated uses the totals carried on the wire when both are present and
// recomputes them from the items otherwise.
func (c *Cart) ToAggregated() *domain.AggregatedCart {
	if c == nil {
		return nil
	}
	var known *domain.Totals
	if c.ItemCount != nil && c.Subtotal != nil {
		known = &domain.Totals{ItemCount: *c.ItemCount, Subtotal: *c.Subtotal}
	}
	totals := domain.ResolveTotals(c.Items, known)
	return &domain.AggregatedCart{
		ID:        c.ID,
		UserID:    c.UserID,
		Items:     c.Items,
		ItemCount: totals.ItemCount,
		Subtotal:  totals.Subtotal,
		UpdatedAt: c.UpdatedAt,
	}
}

func ToLines(items []SyncCartItem) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, domain.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

func FromLines(lines []domain.CartLine) []SyncCartItem {
	items := make([]SyncCartItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, SyncCartItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}
