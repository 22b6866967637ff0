// README: Driver notification rows and the order summary the dispatcher denormalises into them.
package notification

import (
	"time"

	"livraison/internal/types"
)

type Type string

const (
	TypeNouvelleCommande Type = "nouvelle_commande"
	TypeStatutCommande   Type = "statut_commande"
)

// Notification is a queued message for one driver. The order fields are
// copied at creation so the driver UI can render without a join.
type Notification struct {
	ID              types.ID  `json:"id"`
	ChauffeurID     types.ID  `json:"chauffeur_id"`
	Message         string    `json:"message"`
	Titre           *string   `json:"titre,omitempty"`
	Type            Type      `json:"type"`
	Read            bool      `json:"read"`
	OrderID         *types.ID `json:"order_id,omitempty"`
	OrderNumber     *string   `json:"order_number,omitempty"`
	DeliveryAddress *string   `json:"delivery_address,omitempty"`
	CustomerName    *string   `json:"customer_name,omitempty"`
	TotalAmount     *float64  `json:"total_amount,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// OrderSummary is what the dispatcher needs to know about an order.
type OrderSummary struct {
	ID              types.ID
	Number          string
	DeliveryAddress string
	CustomerName    string
	TotalAmount     float64
	DeliveryDate    *string
	DeliveryTime    *string
}

// OrderEvent describes one status change of an order.
type OrderEvent struct {
	Order         OrderSummary
	Previous      string
	Current       string
	CustomerPhone string
	CustomerEmail string
	// DriverID is the driver to inform, empty when no driver row is wanted.
	DriverID types.ID
}

// Changed reports whether the event carries an actual status change.
func (e OrderEvent) Changed() bool {
	return e.Previous != e.Current
}

func forOrder(chauffeurID types.ID, typ Type, titre, message string, o OrderSummary) Notification {
	n := Notification{
		ChauffeurID: chauffeurID,
		Message:     message,
		Titre:       &titre,
		Type:        typ,
	}
	if o.ID != "" {
		id := o.ID
		n.OrderID = &id
	}
	if o.Number != "" {
		num := o.Number
		n.OrderNumber = &num
	}
	if o.DeliveryAddress != "" {
		addr := o.DeliveryAddress
		n.DeliveryAddress = &addr
	}
	if o.CustomerName != "" {
		name := o.CustomerName
		n.CustomerName = &name
	}
	total := o.TotalAmount
	n.TotalAmount = &total
	return n
}
