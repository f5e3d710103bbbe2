// Package store is the client's local cart: two ordered partitions ("cart" and
// "save for later") persisted write-through after every change.
package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/fjod/cartsync/internal/client/pubsub"
	"github.com/fjod/cartsync/internal/client/storage"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/pkg/logger"
)

// StorageKey is the namespace both partitions are persisted under.
const StorageKey = "cart-store"

// State is a copy of both partitions. Version increases with every change.
type State struct {
	Cart         []domain.CartItem
	SaveForLater []domain.CartItem
	Version      uint64
}

type persisted struct {
	Cart         []domain.CartItem `json:"cart"`
	SaveForLater []domain.CartItem `json:"save_for_later"`
}

type Store struct {
	mu      sync.Mutex
	cart    []domain.CartItem
	saved   []domain.CartItem
	version uint64

	storage storage.Storage
	changes *pubsub.Subject[State]
	log     *slog.Logger
}

// New hydrates the store from st. A nil st keeps the store in memory only.
func New(st storage.Storage, log *slog.Logger) *Store {
	s := &Store{
		storage: st,
		changes: pubsub.NewSubject[State](),
		log:     logger.OrDefault(log).With("component", "cart-store"),
	}
	s.hydrate()
	return s
}

func (s *Store) hydrate() {
	if s.storage == nil {
		return
	}
	data, err := s.storage.Get(StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn("failed to load persisted cart", "error", err)
		return
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("discarding unreadable persisted cart", "error", err)
		return
	}
	s.cart = normalize(p.Cart)
	s.saved = normalize(p.SaveForLater)
	for _, item := range s.cart {
		s.saved = removeByID(s.saved, item.Ref())
	}
}

// Subscribe registers fn for every change. fn runs on the goroutine that made
// the change, after the store lock is released.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

// AddToCart increments an existing line or appends a new one. qty below 1
// adds one. A saved-for-later entry with the same id is dropped so the
// partitions stay disjoint; its quantity is not carried over.
func (s *Store) AddToCart(p domain.Product, qty int) {
	if qty < 1 {
		qty = 1
	}
	id := p.Ref()
	if id == "" {
		return
	}
	s.mutate(func() bool {
		if i := indexOf(s.cart, id); i >= 0 {
			s.cart[i].Quantity += qty
		} else {
			s.cart = append(s.cart, domain.CartItem{Product: p, Quantity: qty})
		}
		s.saved = removeByID(s.saved, id)
		return true
	})
}

func (s *Store) RemoveFromCart(id string) {
	s.mutate(func() bool {
		n := len(s.cart)
		s.cart = removeByID(s.cart, id)
		return len(s.cart) != n
	})
}

func (s *Store) RemoveFromSaveForLater(id string) {
	s.mutate(func() bool {
		n := len(s.saved)
		s.saved = removeByID(s.saved, id)
		return len(s.saved) != n
	})
}

// UpdateQuantity sets a cart line's quantity. qty <= 0 removes the line; an
// unknown id is a no-op.
func (s *Store) UpdateQuantity(id string, qty int) {
	if qty <= 0 {
		s.RemoveFromCart(id)
		return
	}
	s.mutate(func() bool {
		i := indexOf(s.cart, id)
		if i < 0 || s.cart[i].Quantity == qty {
			return false
		}
		s.cart[i].Quantity = qty
		return true
	})
}

// AddToSaveForLater moves item out of the cart into save-for-later. It is a
// no-op when the id is already saved.
func (s *Store) AddToSaveForLater(item domain.CartItem) {
	id := item.Ref()
	if id == "" {
		return
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	s.mutate(func() bool {
		if indexOf(s.saved, id) >= 0 {
			return false
		}
		s.saved = append(s.saved, item)
		s.cart = removeByID(s.cart, id)
		return true
	})
}

// MoveToCart moves a saved item into the cart. If the cart already has the id
// its quantity is increased instead of adding a second line.
func (s *Store) MoveToCart(id string) {
	s.mutate(func() bool {
		i := indexOf(s.saved, id)
		if i < 0 {
			return false
		}
		item := s.saved[i]
		s.saved = removeByID(s.saved, id)
		if j := indexOf(s.cart, id); j >= 0 {
			s.cart[j].Quantity += item.Quantity
		} else {
			s.cart = append(s.cart, item)
		}
		return true
	})
}

func (s *Store) ClearCart() {
	s.mutate(func() bool {
		if len(s.cart) == 0 {
			return false
		}
		s.cart = nil
		return true
	})
}

func (s *Store) ClearSaveForLater() {
	s.mutate(func() bool {
		if len(s.saved) == 0 {
			return false
		}
		s.saved = nil
		return true
	})
}

// ReplaceCart overwrites the cart partition wholesale.
func (s *Store) ReplaceCart(items []domain.CartItem) {
	items = normalize(items)
	s.mutate(func() bool {
		s.cart = items
		for _, item := range items {
			s.saved = removeByID(s.saved, item.Ref())
		}
		return true
	})
}

func (s *Store) Cart() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.cart)
}

func (s *Store) SaveForLater() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.saved)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Store) TotalPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, item := range s.cart {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// ExistingItemQuantity returns the cart quantity for id, or 0.
func (s *Store) ExistingItemQuantity(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.cart, id); i >= 0 {
		return s.cart[i].Quantity
	}
	return 0
}

// mutate applies fn under the lock. When fn reports a change the new state is
// persisted and then published outside the lock.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.version++
	state := s.stateLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.changes.Publish(state)
}

func (s *Store) persistLocked() {
	if s.storage == nil {
		return
	}
	data, err := json.Marshal(persisted{Cart: nonNil(s.cart), SaveForLater: nonNil(s.saved)})
	if err != nil {
		s.log.Error("failed to encode cart state", "error", err)
		return
	}
	if err := s.storage.Set(StorageKey, data); err != nil {
		s.log.Warn("failed to persist cart state", "error", err)
	}
}

func (s *Store) stateLocked() State {
	return State{Cart: clone(s.cart), SaveForLater: clone(s.saved), Version: s.version}
}

func indexOf(items []domain.CartItem, id string) int {
	for i, item := range items {
		if item.Ref() == id {
			return i
		}
	}
	return -1
}

func removeByID(items []domain.CartItem, id string) []domain.CartItem {
	i := indexOf(items, id)
	if i < 0 {
		return items
	}
	out := make([]domain.CartItem, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

// normalize drops lines without an id or a positive quantity and merges
// duplicate ids into the first occurrence.
func normalize(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.Ref() == "" || item.Quantity < 1 {
			continue
		}
		if i := indexOf(out, item.Ref()); i >= 0 {
			out[i].Quantity += item.Quantity
			continue
		}
		out = append(out, item)
	}
	return out
}

func clone(items []domain.CartItem) []domain.CartItem {
	return append([]domain.CartItem(nil), items...)
}

func nonNil(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return []domain.CartItem{}
	}
	return items
}
