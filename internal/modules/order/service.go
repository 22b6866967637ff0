// README: Order service: creation saga, reads, and the PATCH-style update path.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"livraison/internal/modules/catalog"
	"livraison/internal/modules/chauffeur"
	"livraison/internal/modules/customer"
	"livraison/internal/modules/notification"
	"livraison/internal/types"
)

// Repository is the order persistence boundary. Multi-row writes run through
// Atomically; fn's error rolls everything back.
type Repository interface {
	Atomically(ctx context.Context, fn func(tx UnitOfWork) error) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	Items(ctx context.Context, orderID types.ID) ([]Item, error)
	Events(ctx context.Context, orderID types.ID) ([]Event, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	Customer(ctx context.Context, id types.ID) (*customer.Customer, error)
}

type UnitOfWork interface {
	UpsertCustomer(ctx context.Context, c customer.Customer) (types.ID, error)
	ResolveItem(ctx context.Context, id types.ID) (catalog.Ref, bool, error)
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, items []Item) error
	GetForUpdate(ctx context.Context, id types.ID) (*Order, error)
	UpdateState(ctx context.Context, c StateChange) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	DriverForUpdate(ctx context.Context, id types.ID) (*chauffeur.Chauffeur, error)
	AdjustDriverLoad(ctx context.Context, id types.ID, delta int) error
	NotificationForUpdate(ctx context.Context, id types.ID) (*notification.Notification, error)
	MarkNotificationRead(ctx context.Context, id types.ID) error
	RetireOffers(ctx context.Context, orderID types.ID) (int64, error)
}

// StateChange is a conditional update: it applies only while the row still
// has status From at StatusVersion.
type StateChange struct {
	OrderID       types.ID
	From          Status
	To            Status
	StatusVersion int
	PaymentStatus *PaymentStatus
	DeliveryNotes *string
	DriverID      *types.ID
	DriverName    *string
	DeliveryCode  *string
	// RequireUnassigned adds "and no driver yet" to the condition.
	RequireUnassigned bool
}

type Notifier interface {
	DispatchOrderEvent(ctx context.Context, ev notification.OrderEvent) error
	NotifyNewOrder(ctx context.Context, chauffeurID types.ID, o notification.OrderSummary) (*notification.Notification, error)
}

// DriverPool lists drivers that may receive a new order, nearest first.
type DriverPool interface {
	Eligible(ctx context.Context, near *types.Point) ([]types.ID, error)
}

type Options struct {
	Fallback   types.Point
	StaleAfter time.Duration
}

type Service struct {
	repo     Repository
	notifier Notifier
	drivers  DriverPool
	opts     Options
	now      func() time.Time
	async    func(func())
	newCode  func() (string, error)
}

func NewService(repo Repository, notifier Notifier, drivers DriverPool, opts Options) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		drivers:  drivers,
		opts:     opts,
		now:      time.Now,
		async:    func(f func()) { go f() },
		newCode:  NewDeliveryCode,
	}
}

// Create validates the payload, then writes customer, order, items and the
// first trail event in one transaction. Any unresolvable item aborts it all.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Detail, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	point := s.opts.Fallback
	if loc := cmd.Delivery.Location; loc != nil && !loc.IsZero() {
		point = *loc
	}

	now := s.now()
	o := &Order{
		ID:               types.NewID(),
		TotalAmount:      cmd.Totals.Total,
		Subtotal:         cmd.Totals.Subtotal,
		DeliveryCost:     cmd.Totals.DeliveryCost,
		Discount:         cmd.Totals.Discount,
		Status:           StatusEnAttente,
		PaymentStatus:    PaymentEnAttente,
		PaymentMethod:    cmd.Payment.Method,
		PaymentDetails:   cmd.Payment.Details,
		DeliveryAddress:  strings.TrimSpace(cmd.Delivery.Address),
		DeliveryDistrict: cmd.Delivery.District,
		DeliveryNotes:    cmd.Delivery.Notes,
		DeliveryOption:   cmd.Delivery.Option,
		DeliveryDate:     cmd.Delivery.Date,
		DeliveryTime:     cmd.Delivery.Time,
		GPS:              point,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	contact := customer.Customer{
		Email:     cmd.Customer.Email,
		FirstName: strings.TrimSpace(cmd.Customer.FirstName),
		LastName:  strings.TrimSpace(cmd.Customer.LastName),
		Phone:     strings.TrimSpace(cmd.Customer.Phone),
	}

	err := s.repo.Atomically(ctx, func(tx UnitOfWork) error {
		customerID, err := tx.UpsertCustomer(ctx, contact)
		if err != nil {
			return fmt.Errorf("upsert customer: %w", err)
		}
		o.CustomerID = customerID
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		items, invalid, err := resolveItems(ctx, tx, o.ID, cmd.Items)
		if err != nil {
			return err
		}
		if len(invalid) > 0 || len(items) == 0 {
			return &InvalidItemsError{Items: invalid}
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		actor := string(customerID)
		return tx.AppendEvent(ctx, &Event{
			OrderID:    o.ID,
			FromStatus: StatusNone,
			ToStatus:   StatusEnAttente,
			ActorType:  ActorCustomer,
			ActorID:    &actor,
			CreatedAt:  now,
		})
	})
	if err != nil {
		var invalid *InvalidItemsError
		if errors.As(err, &invalid) {
			log.Info().Str("component", "order").Int("invalid_items", len(invalid.Items)).Msg("order rejected")
		} else {
			log.Error().Err(err).Str("component", "order").Msg("order creation rolled back")
		}
		return nil, err
	}

	log.Info().Str("component", "order").Str("order_id", string(o.ID)).Str("order_number", o.Number).Msg("order created")

	detail, err := s.detail(ctx, o.ID)
	if err != nil {
		log.Warn().Err(err).Str("component", "order").Str("order_id", string(o.ID)).Msg("re-fetch after create failed")
		return &Detail{Order: Order{ID: o.ID, Number: o.Number, Status: o.Status, TotalAmount: o.TotalAmount}}, nil
	}
	return detail, nil
}

// resolveItems probes the catalogs for each line. Lines found nowhere are
// returned as invalid and never written.
func resolveItems(ctx context.Context, tx UnitOfWork, orderID types.ID, in []ItemInput) ([]Item, []InvalidItem, error) {
	var items []Item
	var invalid []InvalidItem
	for _, it := range in {
		ref, ok, err := tx.ResolveItem(ctx, types.ID(strings.TrimSpace(it.ID)))
		if err != nil {
			return nil, nil, fmt.Errorf("resolve item %s: %w", it.ID, err)
		}
		if !ok {
			invalid = append(invalid, InvalidItem{ID: it.ID, Name: it.Name})
			continue
		}
		items = append(items, Item{
			ID:          types.NewID(),
			OrderID:     orderID,
			Ref:         ref,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
			Subtotal:    it.Price * float64(it.Quantity),
		})
	}
	return items, invalid, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	if !types.IsUUID(id) {
		return nil, fmt.Errorf("%w: order id must be a UUID", ErrBadRequest)
	}
	return s.detail(ctx, types.ID(id))
}

func (s *Service) detail(ctx context.Context, id types.ID) (*Detail, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return &Detail{Order: *o, Items: items, Events: events}, nil
}

func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, f.Status)
	}
	orders, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []Order{}
	}
	return &Page{Orders: orders, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// UpdateCommand carries a partial update; nil fields are left unchanged.
type UpdateCommand struct {
	OrderID          string
	Status           *Status
	PaymentStatus    *PaymentStatus
	DeliveryPersonID *string
	DeliveryNotes    *string
	Actor            Actor
}

// Update applies a PATCH. A status change still has to follow the
// transition table, and setting a driver goes through assignment.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Detail, error) {
	if !types.IsUUID(cmd.OrderID) {
		return nil, fmt.Errorf("%w: order id must be a UUID", ErrBadRequest)
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, *cmd.Status)
	}
	if cmd.PaymentStatus != nil && !cmd.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrBadRequest, *cmd.PaymentStatus)
	}

	ch := change{
		orderID: types.ID(cmd.OrderID),
		to:      cmd.Status,
		payment: cmd.PaymentStatus,
		notes:   cmd.DeliveryNotes,
		actor:   cmd.Actor,
	}
	if cmd.DeliveryPersonID != nil {
		if !types.IsUUID(*cmd.DeliveryPersonID) {
			return nil, fmt.Errorf("%w: delivery_person_id must be a UUID", ErrBadRequest)
		}
		driver := types.ID(*cmd.DeliveryPersonID)
		ch.driverID = &driver
		ch.withCode = true
		if ch.to == nil {
			affecte := StatusAffecte
			ch.to = &affecte
		}
	}
	return s.apply(ctx, ch)
}

// afterCommit fires the status-change notification without holding up the caller.
func (s *Service) afterCommit(ctx context.Context, prev Status, o *Order, actor Actor) {
	if s.notifier == nil || prev == o.Status {
		return
	}
	phone := ""
	email := ""
	if c, err := s.repo.Customer(ctx, o.CustomerID); err != nil {
		log.Warn().Err(err).Str("component", "order").Str("order_id", string(o.ID)).
			Msg("customer lookup failed; notifying without phone")
	} else {
		phone = strings.TrimPrefix(strings.TrimSpace(c.Phone), "+")
		email = c.Email
		if o.CustomerName == "" {
			o.CustomerName = c.FullName()
		}
	}

	ev := notification.OrderEvent{
		Order:         summaryOf(o),
		Previous:      string(prev),
		Current:       string(o.Status),
		CustomerPhone: phone,
		CustomerEmail: email,
	}
	if o.DeliveryPersonID != nil && !(actor.Type == ActorChauffeur && actor.ID == string(*o.DeliveryPersonID)) {
		ev.DriverID = *o.DeliveryPersonID
	}

	bg := context.WithoutCancel(ctx)
	s.async(func() {
		if err := s.notifier.DispatchOrderEvent(bg, ev); err != nil {
			log.Warn().Err(err).Str("component", "order").Str("order_id", string(ev.Order.ID)).
				Msg("status notification failed")
		}
	})
}

func summaryOf(o *Order) notification.OrderSummary {
	sum := notification.OrderSummary{
		ID:              o.ID,
		Number:          o.Number,
		DeliveryAddress: o.DeliveryAddress,
		CustomerName:    o.CustomerName,
		TotalAmount:     o.TotalAmount,
	}
	if o.DeliveryDate != "" {
		d := o.DeliveryDate
		sum.DeliveryDate = &d
	}
	if o.DeliveryTime != "" {
		t := o.DeliveryTime
		sum.DeliveryTime = &t
	}
	return sum
}
