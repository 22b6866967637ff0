package order

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"livraison/internal/modules/catalog"
	"livraison/internal/modules/chauffeur"
	"livraison/internal/modules/customer"
	"livraison/internal/modules/notification"
	"livraison/internal/types"
)

// memDB is an in-memory Repository. Transactions are serialised and rolled
// back by restoring a snapshot.
type memDB struct {
	mu            sync.Mutex
	customers     map[types.ID]customer.Customer
	catalog       map[types.ID]catalog.Kind
	orders        map[types.ID]Order
	items         []Item
	events        []Event
	drivers       map[types.ID]chauffeur.Chauffeur
	notifications map[types.ID]notification.Notification
	seq           int
	failGet       bool
}

func newMemDB() *memDB {
	return &memDB{
		customers:     make(map[types.ID]customer.Customer),
		catalog:       make(map[types.ID]catalog.Kind),
		orders:        make(map[types.ID]Order),
		drivers:       make(map[types.ID]chauffeur.Chauffeur),
		notifications: make(map[types.ID]notification.Notification),
		seq:           1000,
	}
}

type snapshot struct {
	customers     map[types.ID]customer.Customer
	orders        map[types.ID]Order
	items         []Item
	events        []Event
	drivers       map[types.ID]chauffeur.Chauffeur
	notifications map[types.ID]notification.Notification
	seq           int
}

func (m *memDB) snapshot() snapshot {
	return snapshot{
		customers:     maps.Clone(m.customers),
		orders:        maps.Clone(m.orders),
		items:         slices.Clone(m.items),
		events:        slices.Clone(m.events),
		drivers:       maps.Clone(m.drivers),
		notifications: maps.Clone(m.notifications),
		seq:           m.seq,
	}
}

func (m *memDB) restore(s snapshot) {
	m.customers = s.customers
	m.orders = s.orders
	m.items = s.items
	m.events = s.events
	m.drivers = s.drivers
	m.notifications = s.notifications
	m.seq = s.seq
}

func (m *memDB) Atomically(_ context.Context, fn func(tx UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(memTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memDB) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("read view unavailable")
	}
	return m.view(id)
}

func (m *memDB) view(id types.ID) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c, ok := m.customers[o.CustomerID]; ok {
		o.CustomerEmail = c.Email
		o.CustomerPhone = c.Phone
		o.CustomerName = c.FullName()
	}
	return &o, nil
}

func (m *memDB) Items(_ context.Context, orderID types.ID) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, it := range m.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memDB) Events(_ context.Context, orderID types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memDB) List(_ context.Context, f Filter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Order
	for id, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.DriverID != "" && (o.DeliveryPersonID == nil || *o.DeliveryPersonID != f.DriverID) {
			continue
		}
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		v, _ := m.view(id)
		all = append(all, *v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number > all[j].Number })
	total := len(all)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return all[start:end], total, nil
}

func (m *memDB) Customer(_ context.Context, id types.ID) (*customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

// notification.Repository, so the real dispatcher writes into the same rows.

func (m *memDB) Insert(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = time.Now()
	m.notifications[n.ID] = *n
	return nil
}

func (m *memDB) ListForChauffeur(_ context.Context, id types.ID, unreadOnly bool) ([]notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.notifications {
		if n.ChauffeurID == id && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memDB) SetRead(_ context.Context, id types.ID, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.Read = read
	m.notifications[id] = n
	return nil
}

func (m *memDB) SetReadFor(ctx context.Context, id, chauffeurID types.ID, read bool) error {
	m.mu.Lock()
	n, ok := m.notifications[id]
	m.mu.Unlock()
	if !ok || n.ChauffeurID != chauffeurID {
		return notification.ErrNotFound
	}
	return m.SetRead(ctx, id, read)
}

func (m *memDB) countNotifications() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

func (m *memDB) driver(id types.ID) chauffeur.Chauffeur {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drivers[id]
}

func (m *memDB) orderRow(id types.ID) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

// memTx runs with memDB.mu held.
type memTx struct{ m *memDB }

func (t memTx) UpsertCustomer(_ context.Context, c customer.Customer) (types.ID, error) {
	email := customer.NormalizeEmail(c.Email)
	for id, existing := range t.m.customers {
		if existing.Email == email {
			c.ID = id
			c.Email = email
			t.m.customers[id] = c
			return id, nil
		}
	}
	c.ID = types.NewID()
	c.Email = email
	t.m.customers[c.ID] = c
	return c.ID, nil
}

func (t memTx) ResolveItem(_ context.Context, id types.ID) (catalog.Ref, bool, error) {
	kind, ok := t.m.catalog[id]
	if !ok {
		return catalog.Ref{}, false, nil
	}
	return catalog.Ref{Kind: kind, ID: id}, true, nil
}

func (t memTx) InsertOrder(_ context.Context, o *Order) error {
	t.m.seq++
	o.Number = "CMD-" + strconv.Itoa(t.m.seq)
	t.m.orders[o.ID] = *o
	return nil
}

func (t memTx) InsertItems(_ context.Context, items []Item) error {
	t.m.items = append(t.m.items, items...)
	return nil
}

func (t memTx) GetForUpdate(_ context.Context, id types.ID) (*Order, error) {
	o, ok := t.m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (t memTx) UpdateState(_ context.Context, c StateChange) (bool, error) {
	o, ok := t.m.orders[c.OrderID]
	if !ok || o.Status != c.From || o.StatusVersion != c.StatusVersion {
		return false, nil
	}
	if c.RequireUnassigned && o.DeliveryPersonID != nil {
		return false, nil
	}
	o.Status = c.To
	o.StatusVersion++
	if c.PaymentStatus != nil {
		o.PaymentStatus = *c.PaymentStatus
	}
	if c.DeliveryNotes != nil {
		o.DeliveryNotes = *c.DeliveryNotes
	}
	if c.DriverID != nil {
		d := *c.DriverID
		o.DeliveryPersonID = &d
	}
	if c.DriverName != nil {
		n := *c.DriverName
		o.DeliveryPersonName = &n
	}
	if c.DeliveryCode != nil {
		code := *c.DeliveryCode
		o.DeliveryCode = &code
	}
	t.m.orders[o.ID] = o
	return true, nil
}

func (t memTx) AppendEvent(_ context.Context, e *Event) error {
	e.ID = int64(len(t.m.events) + 1)
	t.m.events = append(t.m.events, *e)
	return nil
}

func (t memTx) DriverForUpdate(_ context.Context, id types.ID) (*chauffeur.Chauffeur, error) {
	d, ok := t.m.drivers[id]
	if !ok {
		return nil, chauffeur.ErrNotFound
	}
	return &d, nil
}

func (t memTx) AdjustDriverLoad(_ context.Context, id types.ID, delta int) error {
	d, ok := t.m.drivers[id]
	if !ok {
		return chauffeur.ErrNotFound
	}
	d.ActiveDeliveries = max(d.ActiveDeliveries+delta, 0)
	t.m.drivers[id] = d
	return nil
}

func (t memTx) NotificationForUpdate(_ context.Context, id types.ID) (*notification.Notification, error) {
	n, ok := t.m.notifications[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return &n, nil
}

func (t memTx) MarkNotificationRead(_ context.Context, id types.ID) error {
	n, ok := t.m.notifications[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.Read = true
	t.m.notifications[id] = n
	return nil
}

func (t memTx) RetireOffers(_ context.Context, orderID types.ID) (int64, error) {
	var n int64
	for id, row := range t.m.notifications {
		if row.OrderID != nil && *row.OrderID == orderID && row.Type == notification.TypeNouvelleCommande && !row.Read {
			row.Read = true
			t.m.notifications[id] = row
			n++
		}
	}
	return n, nil
}
