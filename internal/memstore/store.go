// Package memstore is an in-memory implementation of the order and inventory
// stores. Transactions buffer their writes and hold row locks until they end,
// the same way the Postgres store holds FOR UPDATE locks.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type Store struct {
	mu       sync.Mutex
	products map[int64]orders.Product
	orders   map[int64]orders.Order
	rowLocks map[string]*sync.Mutex

	nextProductID int64
	nextOrderID   int64
	nextItemID    int64
}

func New() *Store {
	return &Store{
		products: map[int64]orders.Product{},
		orders:   map[int64]orders.Order{},
		rowLocks: map[string]*sync.Mutex{},
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		s:        s,
		held:     map[string]*sync.Mutex{},
		products: map[int64]orders.Product{},
		orders:   map[int64]orders.Order{},
	}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// Inventory returns a store where every call runs in its own transaction.
func (s *Store) Inventory() orders.InventoryStore { return autoInventory{s} }

// Orders returns a store where every call runs in its own transaction.
func (s *Store) Orders() orders.OrderStore { return autoOrders{s} }

func (s *Store) rowLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[key] = m
	}
	return m
}

type tx struct {
	s        *Store
	held     map[string]*sync.Mutex
	products map[int64]orders.Product
	orders   map[int64]orders.Order
}

func (t *tx) Inventory() orders.InventoryStore { return txInventory{t} }
func (t *tx) Orders() orders.OrderStore        { return txOrders{t} }

func (t *tx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	m := t.s.rowLock(key)
	m.Lock()
	t.held[key] = m
}

func (t *tx) release() {
	for k, m := range t.held {
		m.Unlock()
		delete(t.held, k)
	}
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, p := range t.products {
		t.s.products[id] = p
	}
	for id, o := range t.orders {
		t.s.orders[id] = o
	}
}

func productKey(id int64) string { return fmt.Sprintf("p:%d", id) }
func orderKey(id int64) string   { return fmt.Sprintf("o:%d", id) }

type txInventory struct{ t *tx }

func (i txInventory) FindByID(ctx context.Context, id int64) (orders.Product, bool, error) {
	if err := ctx.Err(); err != nil {
		return orders.Product{}, false, err
	}
	i.t.lock(productKey(id))
	if p, ok := i.t.products[id]; ok {
		return p, true, nil
	}
	i.t.s.mu.Lock()
	defer i.t.s.mu.Unlock()
	p, ok := i.t.s.products[id]
	return p, ok, nil
}

func (i txInventory) Save(ctx context.Context, p orders.Product) (orders.Product, error) {
	if err := ctx.Err(); err != nil {
		return orders.Product{}, err
	}
	if err := p.Validate(); err != nil {
		return orders.Product{}, err
	}
	s := i.t.s
	s.mu.Lock()
	if p.ID == 0 {
		s.nextProductID++
		p.ID = s.nextProductID
	} else if _, ok := s.products[p.ID]; !ok {
		if _, pending := i.t.products[p.ID]; !pending {
			s.mu.Unlock()
			return orders.Product{}, fmt.Errorf("save product %d: %w", p.ID, orders.ErrProductNotFound)
		}
	}
	s.mu.Unlock()

	i.t.lock(productKey(p.ID))
	i.t.products[p.ID] = p
	return p, nil
}

type txOrders struct{ t *tx }

func (o txOrders) FindByID(ctx context.Context, id int64) (orders.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, false, err
	}
	o.t.lock(orderKey(id))
	if ord, ok := o.t.orders[id]; ok {
		return cloneOrder(ord), true, nil
	}
	o.t.s.mu.Lock()
	defer o.t.s.mu.Unlock()
	ord, ok := o.t.s.orders[id]
	return cloneOrder(ord), ok, nil
}

func (o txOrders) FindByStatus(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []orders.Order
	for _, ord := range o.visible() {
		if ord.Status == status {
			out = append(out, ord)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (o txOrders) CountByStatus(ctx context.Context) (map[orders.Status]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := map[orders.Status]int64{}
	for _, ord := range o.visible() {
		out[ord.Status]++
	}
	return out, nil
}

// visible merges committed orders with this transaction's pending writes.
func (o txOrders) visible() map[int64]orders.Order {
	o.t.s.mu.Lock()
	all := make(map[int64]orders.Order, len(o.t.s.orders))
	for id, ord := range o.t.s.orders {
		all[id] = cloneOrder(ord)
	}
	o.t.s.mu.Unlock()
	for id, ord := range o.t.orders {
		all[id] = cloneOrder(ord)
	}
	return all
}

func (o txOrders) Save(ctx context.Context, ord orders.Order) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	s := o.t.s
	if ord.ID == 0 {
		s.mu.Lock()
		s.nextOrderID++
		ord.ID = s.nextOrderID
		ord.Items = cloneItems(ord.Items)
		for i := range ord.Items {
			s.nextItemID++
			ord.Items[i].ID = s.nextItemID
		}
		s.mu.Unlock()
		if ord.CreatedAt.IsZero() {
			ord.CreatedAt = time.Now().UTC()
		}
		if ord.Status == "" {
			ord.Status = orders.StatusPending
		}
		o.t.lock(orderKey(ord.ID))
		o.t.orders[ord.ID] = cloneOrder(ord)
		return ord, nil
	}

	current, ok, err := o.FindByID(ctx, ord.ID)
	if err != nil {
		return orders.Order{}, err
	}
	if !ok {
		return orders.Order{}, fmt.Errorf("save order %d: %w", ord.ID, orders.ErrOrderNotFound)
	}
	current.Status = ord.Status
	o.t.orders[ord.ID] = current
	return cloneOrder(current), nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = cloneItems(o.Items)
	return o
}

func cloneItems(items []orders.OrderItem) []orders.OrderItem {
	if items == nil {
		return nil
	}
	out := make([]orders.OrderItem, len(items))
	copy(out, items)
	return out
}

type autoInventory struct{ s *Store }

func (a autoInventory) FindByID(ctx context.Context, id int64) (p orders.Product, ok bool, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, ok, err = tx.Inventory().FindByID(ctx, id)
		return err
	})
	return p, ok, err
}

func (a autoInventory) Save(ctx context.Context, p orders.Product) (saved orders.Product, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		saved, err = tx.Inventory().Save(ctx, p)
		return err
	})
	return saved, err
}

type autoOrders struct{ s *Store }

func (a autoOrders) FindByStatus(ctx context.Context, status orders.Status) (out []orders.Order, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		out, err = tx.Orders().FindByStatus(ctx, status)
		return err
	})
	return out, err
}

func (a autoOrders) FindByID(ctx context.Context, id int64) (o orders.Order, ok bool, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		o, ok, err = tx.Orders().FindByID(ctx, id)
		return err
	})
	return o, ok, err
}

func (a autoOrders) Save(ctx context.Context, o orders.Order) (saved orders.Order, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		saved, err = tx.Orders().Save(ctx, o)
		return err
	})
	return saved, err
}

func (a autoOrders) CountByStatus(ctx context.Context) (out map[orders.Status]int64, err error) {
	err = a.s.RunInTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		out, err = tx.Orders().CountByStatus(ctx)
		return err
	})
	return out, err
}
