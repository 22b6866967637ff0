// README: Delivery state machine operations: admin transitions, assignment, driver accept/decline, dispatch.
package order

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"

	"livraison/internal/modules/chauffeur"
	"livraison/internal/modules/notification"
	"livraison/internal/types"
)

// change is one requested mutation of an order, validated and applied under a
// row lock.
type change struct {
	orderID        types.ID
	to             *Status
	payment        *PaymentStatus
	notes          *string
	driverID       *types.ID
	withCode       bool
	notificationID *types.ID
	actor          Actor
}

// apply runs the change in one transaction: lock the order, check the
// transition, pair assignment with the driver's load, retire open offers once
// the order stops searching, release the driver on a terminal state, append
// the trail event. Notifications fire after commit.
func (s *Service) apply(ctx context.Context, ch change) (*Detail, error) {
	var prev Status
	var after Order
	now := s.now()

	err := s.repo.Atomically(ctx, func(tx UnitOfWork) error {
		if ch.notificationID != nil {
			if err := s.claimOffer(ctx, tx, *ch.notificationID, ch); err != nil {
				return err
			}
		}

		o, err := tx.GetForUpdate(ctx, ch.orderID)
		if err != nil {
			return err
		}
		if ch.actor.Type == ActorChauffeur && ch.driverID == nil &&
			(o.DeliveryPersonID == nil || string(*o.DeliveryPersonID) != ch.actor.ID) {
			return ErrForbidden
		}
		prev = o.Status
		to := o.Status
		if ch.to != nil {
			to = *ch.to
		}
		if to != o.Status && !CanTransition(o.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, o.Status, to)
		}

		sc := StateChange{
			OrderID:       o.ID,
			From:          o.Status,
			To:            to,
			StatusVersion: o.StatusVersion,
			PaymentStatus: ch.payment,
			DeliveryNotes: ch.notes,
		}

		if ch.driverID != nil {
			if to != StatusAffecte {
				return fmt.Errorf("%w: a driver can only be set when assigning", ErrInvalidState)
			}
			if o.Status != StatusRechercheChauffeur || o.DeliveryPersonID != nil {
				return fmt.Errorf("%w: order already assigned", ErrConflict)
			}
			d, err := tx.DriverForUpdate(ctx, *ch.driverID)
			if errors.Is(err, chauffeur.ErrNotFound) {
				return fmt.Errorf("%w: chauffeur %s", ErrNotFound, *ch.driverID)
			}
			if err != nil {
				return err
			}
			if !d.Disponible || chauffeur.Presence(*d, now, s.opts.StaleAfter) == chauffeur.StatutHorsLigne {
				return ErrDriverUnavailable
			}
			sc.DriverID = ch.driverID
			sc.DriverName = &d.Nom
			sc.RequireUnassigned = true
			if ch.withCode {
				code, err := s.newCode()
				if err != nil {
					return err
				}
				sc.DeliveryCode = &code
			}
		} else if to != o.Status && to.RequiresDriver() && o.DeliveryPersonID == nil {
			return fmt.Errorf("%w: %s needs an assigned driver", ErrInvalidState, to)
		}

		ok, err := tx.UpdateState(ctx, sc)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}

		driver := o.DeliveryPersonID
		if ch.driverID != nil {
			driver = ch.driverID
			if err := tx.AdjustDriverLoad(ctx, *ch.driverID, 1); err != nil {
				return fmt.Errorf("increment driver load: %w", err)
			}
		}
		if to != o.Status && to.IsTerminal() && o.DeliveryPersonID != nil {
			if err := tx.AdjustDriverLoad(ctx, *o.DeliveryPersonID, -1); err != nil {
				return fmt.Errorf("release driver: %w", err)
			}
		}

		// Offers still open for this order can no longer be accepted.
		if to != o.Status && o.Status == StatusRechercheChauffeur {
			retired, err := tx.RetireOffers(ctx, o.ID)
			if err != nil {
				return fmt.Errorf("retire offers: %w", err)
			}
			if retired > 0 {
				log.Debug().Str("component", "order").Str("order_id", string(o.ID)).Int64("offers", retired).Msg("offers retired")
			}
		}

		if to != o.Status {
			var actorID *string
			if ch.actor.ID != "" {
				id := ch.actor.ID
				actorID = &id
			}
			if err := tx.AppendEvent(ctx, &Event{
				OrderID:    o.ID,
				FromStatus: o.Status,
				ToStatus:   to,
				ActorType:  ch.actor.Type,
				ActorID:    actorID,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}

		after = *o
		after.Status = to
		after.StatusVersion++
		after.DeliveryPersonID = driver
		if sc.DriverName != nil {
			after.DeliveryPersonName = sc.DriverName
		}
		if sc.DeliveryCode != nil {
			after.DeliveryCode = sc.DeliveryCode
		}
		if ch.payment != nil {
			after.PaymentStatus = *ch.payment
		}
		if ch.notes != nil {
			after.DeliveryNotes = *ch.notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if prev != after.Status {
		log.Info().Str("component", "order").Str("order_id", string(after.ID)).
			Str("from", string(prev)).Str("to", string(after.Status)).Str("actor", ch.actor.Type).Msg("order transition")
	}
	s.afterCommit(ctx, prev, &after, ch.actor)

	detail, err := s.detail(ctx, after.ID)
	if err != nil {
		log.Warn().Err(err).Str("component", "order").Str("order_id", string(after.ID)).Msg("re-fetch after update failed")
		return &Detail{Order: after}, nil
	}
	return detail, nil
}

// claimOffer checks the notification is a new-order offer for this order and
// driver, then marks it read.
func (s *Service) claimOffer(ctx context.Context, tx UnitOfWork, id types.ID, ch change) error {
	n, err := tx.NotificationForUpdate(ctx, id)
	if errors.Is(err, notification.ErrNotFound) {
		return fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if ch.driverID != nil && n.ChauffeurID != *ch.driverID {
		return fmt.Errorf("%w: notification belongs to another chauffeur", ErrBadRequest)
	}
	if ch.driverID != nil && (n.Type != notification.TypeNouvelleCommande || n.OrderID == nil || *n.OrderID != ch.orderID) {
		return fmt.Errorf("%w: notification is not an offer for this order", ErrBadRequest)
	}
	return tx.MarkNotificationRead(ctx, id)
}

// Transition moves an order along the table on behalf of actor.
func (s *Service) Transition(ctx context.Context, orderID string, to Status, actor Actor) (*Detail, error) {
	if !types.IsUUID(orderID) {
		return nil, fmt.Errorf("%w: order id must be a UUID", ErrBadRequest)
	}
	if to == StatusAffecte {
		return nil, fmt.Errorf("%w: use assignment to set a driver", ErrInvalidState)
	}
	return s.apply(ctx, change{orderID: types.ID(orderID), to: &to, actor: actor})
}

func (s *Service) Confirm(ctx context.Context, orderID string, actor Actor) (*Detail, error) {
	return s.Transition(ctx, orderID, StatusRechercheChauffeur, actor)
}

func (s *Service) MarkEnRoute(ctx context.Context, orderID string, actor Actor) (*Detail, error) {
	return s.Transition(ctx, orderID, StatusEnRoutePickup, actor)
}

func (s *Service) MarkPickedUp(ctx context.Context, orderID string, actor Actor) (*Detail, error) {
	return s.Transition(ctx, orderID, StatusRecupere, actor)
}

func (s *Service) MarkInTransit(ctx context.Context, orderID string, actor Actor) (*Detail, error) {
	return s.Transition(ctx, orderID, StatusEnLivraison, actor)
}

func (s *Service) MarkDelivered(ctx context.Context, orderID string, actor Actor) (*Detail, error) {
	return s.Transition(ctx, orderID, StatusLivre, actor)
}

func (s *Service) Cancel(ctx context.Context, orderID string, actor Actor) (*Detail, error) {
	return s.Transition(ctx, orderID, StatusAnnule, actor)
}

type AssignCommand struct {
	OrderID     string
	ChauffeurID string
	Actor       Actor
}

// Assign pairs a searching order with an available driver. Only one of two
// concurrent assignments can win; the other gets ErrConflict.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Detail, error) {
	if !types.IsUUID(cmd.OrderID) || !types.IsUUID(cmd.ChauffeurID) {
		return nil, fmt.Errorf("%w: order and chauffeur ids must be UUIDs", ErrBadRequest)
	}
	driver := types.ID(cmd.ChauffeurID)
	to := StatusAffecte
	return s.apply(ctx, change{
		orderID:  types.ID(cmd.OrderID),
		to:       &to,
		driverID: &driver,
		withCode: true,
		actor:    cmd.Actor,
	})
}

type OfferCommand struct {
	NotificationID string
	ChauffeurID    string
}

// AcceptAssignment is the driver's accept: assignment, delivery code, driver
// name and the offer marked read, all or nothing.
func (s *Service) AcceptAssignment(ctx context.Context, cmd OfferCommand) (*Detail, error) {
	if !types.IsUUID(cmd.NotificationID) || !types.IsUUID(cmd.ChauffeurID) {
		return nil, fmt.Errorf("%w: notification and chauffeur ids must be UUIDs", ErrBadRequest)
	}
	orderID, err := s.offeredOrder(ctx, types.ID(cmd.NotificationID))
	if err != nil {
		return nil, err
	}
	driver := types.ID(cmd.ChauffeurID)
	notif := types.ID(cmd.NotificationID)
	to := StatusAffecte
	return s.apply(ctx, change{
		orderID:        orderID,
		to:             &to,
		driverID:       &driver,
		withCode:       true,
		notificationID: &notif,
		actor:          Actor{Type: ActorChauffeur, ID: cmd.ChauffeurID},
	})
}

// offeredOrder reads the order id off the offer before the main transaction
// locks the order row.
func (s *Service) offeredOrder(ctx context.Context, notificationID types.ID) (types.ID, error) {
	var orderID types.ID
	err := s.repo.Atomically(ctx, func(tx UnitOfWork) error {
		n, err := tx.NotificationForUpdate(ctx, notificationID)
		if errors.Is(err, notification.ErrNotFound) {
			return fmt.Errorf("%w: notification %s", ErrNotFound, notificationID)
		}
		if err != nil {
			return err
		}
		if n.OrderID == nil {
			return fmt.Errorf("%w: notification carries no order", ErrBadRequest)
		}
		orderID = *n.OrderID
		return nil
	})
	return orderID, err
}

// DeclineAssignment marks the offer read and leaves the order untouched.
func (s *Service) DeclineAssignment(ctx context.Context, cmd OfferCommand) error {
	if !types.IsUUID(cmd.NotificationID) || !types.IsUUID(cmd.ChauffeurID) {
		return fmt.Errorf("%w: notification and chauffeur ids must be UUIDs", ErrBadRequest)
	}
	id := types.ID(cmd.NotificationID)
	return s.repo.Atomically(ctx, func(tx UnitOfWork) error {
		n, err := tx.NotificationForUpdate(ctx, id)
		if errors.Is(err, notification.ErrNotFound) {
			return fmt.Errorf("%w: notification %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if string(n.ChauffeurID) != cmd.ChauffeurID {
			return fmt.Errorf("%w: notification belongs to another chauffeur", ErrBadRequest)
		}
		return tx.MarkNotificationRead(ctx, id)
	})
}

type DispatchCommand struct {
	OrderID string
	// ChauffeurID targets one driver; empty offers to every eligible driver.
	ChauffeurID string
}

// DispatchToDrivers queues nouvelle_commande offers for an order that is
// looking for a driver.
func (s *Service) DispatchToDrivers(ctx context.Context, cmd DispatchCommand) ([]notification.Notification, error) {
	if s.notifier == nil {
		return nil, errors.New("dispatch: no notifier configured")
	}
	d, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusRechercheChauffeur || d.DeliveryPersonID != nil {
		return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, d.Status)
	}

	var targets []types.ID
	if cmd.ChauffeurID != "" {
		if !types.IsUUID(cmd.ChauffeurID) {
			return nil, fmt.Errorf("%w: chauffeur id must be a UUID", ErrBadRequest)
		}
		targets = []types.ID{types.ID(cmd.ChauffeurID)}
	} else if s.drivers != nil {
		var near *types.Point
		if !d.GPS.IsZero() {
			p := d.GPS
			near = &p
		}
		targets, err = s.drivers.Eligible(ctx, near)
		if err != nil {
			return nil, err
		}
	}
	if len(targets) == 0 {
		return nil, ErrNoDriverAvailable
	}

	sum := summaryOf(&d.Order)
	out := make([]notification.Notification, 0, len(targets))
	for _, id := range targets {
		n, err := s.notifier.NotifyNewOrder(ctx, id, sum)
		if err != nil {
			return out, fmt.Errorf("offer to %s: %w", id, err)
		}
		out = append(out, *n)
	}
	log.Info().Str("component", "order").Str("order_id", string(d.ID)).Int("offers", len(out)).Msg("order dispatched")
	return out, nil
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewDeliveryCode returns 5 characters drawn uniformly from A-Z and 0-9.
func NewDeliveryCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, 5)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
