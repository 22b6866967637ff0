// README: Notification dispatcher: status-change fan-out to drivers and customers, new-order offers, inbox reads.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"livraison/internal/types"
)

var (
	ErrNotFound   = errors.New("notification not found")
	ErrInvalidID  = errors.New("id must be a UUID")
	ErrBadRequest = errors.New("bad request")
)

type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	ListForChauffeur(ctx context.Context, chauffeurID types.ID, unreadOnly bool) ([]Notification, error)
	SetRead(ctx context.Context, id types.ID, read bool) error
	SetReadFor(ctx context.Context, id, chauffeurID types.ID, read bool) error
}

// DeviceTokens resolves the FCM registration token of a driver.
type DeviceTokens interface {
	DeviceToken(ctx context.Context, chauffeurID types.ID) (string, error)
}

type Service struct {
	store       Repository
	sink        CustomerSink
	pusher      Pusher
	tokens      DeviceTokens
	sinkTimeout time.Duration
	newID       func() types.ID
}

// NewService builds the dispatcher. sink, pusher and tokens may be nil.
func NewService(store Repository, sink CustomerSink, pusher Pusher, tokens DeviceTokens, sinkTimeout time.Duration) *Service {
	return &Service{
		store:       store,
		sink:        sink,
		pusher:      pusher,
		tokens:      tokens,
		sinkTimeout: sinkTimeout,
		newID:       types.NewID,
	}
}

// DispatchOrderEvent informs the customer and, when DriverID is set, queues a
// row for the driver. Nothing happens when the status did not change. Customer
// sink failures are logged and never returned.
func (s *Service) DispatchOrderEvent(ctx context.Context, ev OrderEvent) error {
	if !ev.Changed() {
		return nil
	}
	logger := log.With().Str("component", "notification").Str("order_id", string(ev.Order.ID)).
		Str("from", ev.Previous).Str("to", ev.Current).Logger()

	if ev.CustomerPhone != "" && s.sink != nil {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sinkTimeout)
		err := s.sink.Send(sinkCtx, CustomerMessage{
			OrderID:      string(ev.Order.ID),
			Phone:        ev.CustomerPhone,
			Status:       ev.Current,
			OrderNumber:  ev.Order.Number,
			CustomerName: ev.Order.CustomerName,
			TotalAmount:  ev.Order.TotalAmount,
			DeliveryDate: ev.Order.DeliveryDate,
			DeliveryTime: ev.Order.DeliveryTime,
			Email:        ev.CustomerEmail,
		})
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("customer notification failed")
		}
	}

	if ev.DriverID == "" {
		return nil
	}
	n := forOrder(ev.DriverID, TypeStatutCommande, "Mise à jour de commande",
		fmt.Sprintf("Commande %s : %s", ev.Order.Number, statusLabel(ev.Current)), ev.Order)
	n.ID = s.newID()
	if err := s.store.Insert(ctx, &n); err != nil {
		return fmt.Errorf("insert driver notification: %w", err)
	}
	return nil
}

// NotifyNewOrder queues a nouvelle_commande offer for the driver and pushes it
// to their device when a token is on file.
func (s *Service) NotifyNewOrder(ctx context.Context, chauffeurID types.ID, o OrderSummary) (*Notification, error) {
	if !chauffeurID.IsUUID() {
		return nil, ErrInvalidID
	}
	n := forOrder(chauffeurID, TypeNouvelleCommande, "Nouvelle commande",
		fmt.Sprintf("Nouvelle commande %s à livrer : %s", o.Number, o.DeliveryAddress), o)
	n.ID = s.newID()
	if err := s.store.Insert(ctx, &n); err != nil {
		return nil, err
	}
	s.push(ctx, n)
	return &n, nil
}

func (s *Service) push(ctx context.Context, n Notification) {
	if s.pusher == nil || s.tokens == nil {
		return
	}
	token, err := s.tokens.DeviceToken(ctx, n.ChauffeurID)
	if err != nil || token == "" {
		if err != nil {
			log.Warn().Err(err).Str("component", "notification").Str("chauffeur_id", string(n.ChauffeurID)).
				Msg("device token lookup failed")
		}
		return
	}
	if err := s.pusher.Push(ctx, token, n); err != nil {
		log.Warn().Err(err).Str("component", "notification").Str("notification_id", string(n.ID)).Msg("push failed")
	}
}

func (s *Service) List(ctx context.Context, chauffeurID string, unreadOnly bool) ([]Notification, error) {
	if !types.IsUUID(chauffeurID) {
		return nil, ErrInvalidID
	}
	return s.store.ListForChauffeur(ctx, types.ID(chauffeurID), unreadOnly)
}

// MarkRead toggles the read flag. A non-empty chauffeurID restricts the
// change to that driver's own rows; someone else's row reads as not found.
func (s *Service) MarkRead(ctx context.Context, id, chauffeurID string, read bool) error {
	if !types.IsUUID(id) {
		return ErrInvalidID
	}
	if chauffeurID == "" {
		return s.store.SetRead(ctx, types.ID(id), read)
	}
	if !types.IsUUID(chauffeurID) {
		return ErrInvalidID
	}
	return s.store.SetReadFor(ctx, types.ID(id), types.ID(chauffeurID), read)
}
