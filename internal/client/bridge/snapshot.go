package bridge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/fjod/cartsync/internal/domain"
)

// Snapshot is the cart reduced to (id, quantity) pairs sorted by id, so two
// carts holding the same lines in a different order compare equal.
type Snapshot []domain.CartLine

func SnapshotOf(items []domain.CartItem) Snapshot {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		id := item.Ref()
		if id == "" || item.Quantity < 1 {
			continue
		}
		totals[id] += item.Quantity
	}

	snap := make(Snapshot, 0, len(totals))
	for id, qty := range totals {
		snap = append(snap, domain.CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(snap, func(i, j int) bool { return snap[i].ProductID < snap[j].ProductID })
	return snap
}

func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Key renders the snapshot as "id:qty,id:qty" for logs.
func (s Snapshot) Key() string {
	var b strings.Builder
	for i, line := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(line.ProductID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(line.Quantity))
	}
	return b.String()
}

func (s Snapshot) Lines() []domain.CartLine {
	return append([]domain.CartLine{}, s...)
}
