// README: Order aggregate, delivery status definitions and the transition table.
package order

import (
	"encoding/json"
	"time"

	"livraison/internal/modules/catalog"
	"livraison/internal/types"
)

type Status string

const (
	StatusNone               Status = "none"
	StatusEnAttente          Status = "en_attente"
	StatusRechercheChauffeur Status = "recherche_chauffeur"
	StatusAffecte            Status = "affecte"
	StatusEnRoutePickup      Status = "en_route_pickup"
	StatusRecupere           Status = "recupere"
	StatusEnLivraison        Status = "en_livraison"
	StatusLivre              Status = "livre"
	StatusAnnule             Status = "annule"
)

func (s Status) Valid() bool {
	_, ok := AllowedTransitions[s]
	return ok || s.IsTerminal()
}

func (s Status) IsTerminal() bool {
	return s == StatusLivre || s == StatusAnnule
}

// RequiresDriver reports whether an order in this status must carry a driver.
func (s Status) RequiresDriver() bool {
	switch s {
	case StatusAffecte, StatusEnRoutePickup, StatusRecupere, StatusEnLivraison, StatusLivre:
		return true
	}
	return false
}

// AllowedTransitions represents the delivery flow as code. Terminal states
// have no entry, so nothing leaves livre or annule.
var AllowedTransitions = map[Status][]Status{
	StatusEnAttente:          {StatusRechercheChauffeur, StatusAnnule},
	StatusRechercheChauffeur: {StatusAffecte, StatusAnnule},
	StatusAffecte:            {StatusEnRoutePickup, StatusAnnule},
	StatusEnRoutePickup:      {StatusRecupere, StatusAnnule},
	StatusRecupere:           {StatusEnLivraison, StatusAnnule},
	StatusEnLivraison:        {StatusLivre, StatusAnnule},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentEnAttente PaymentStatus = "en_attente"
	PaymentPaye      PaymentStatus = "paye"
	PaymentRembourse PaymentStatus = "rembourse"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentEnAttente, PaymentPaye, PaymentRembourse:
		return true
	}
	return false
}

type Order struct {
	ID                 types.ID       `json:"id"`
	Number             string         `json:"order_number"`
	CustomerID         types.ID       `json:"customer_id"`
	TotalAmount        float64        `json:"total_amount"`
	Subtotal           float64        `json:"subtotal"`
	DeliveryCost       float64        `json:"delivery_cost"`
	Discount           float64        `json:"discount"`
	Status             Status         `json:"status"`
	StatusVersion      int            `json:"status_version"`
	PaymentStatus      PaymentStatus  `json:"payment_status"`
	PaymentMethod      string         `json:"payment_method"`
	PaymentDetails     map[string]any `json:"payment_details,omitempty"`
	DeliveryAddress    string         `json:"delivery_address"`
	DeliveryDistrict   string         `json:"delivery_district,omitempty"`
	DeliveryNotes      string         `json:"delivery_notes,omitempty"`
	DeliveryOption     string         `json:"delivery_option"`
	DeliveryDate       string         `json:"delivery_date,omitempty"`
	DeliveryTime       string         `json:"delivery_time,omitempty"`
	GPS                types.Point    `json:"gps"`
	DeliveryPersonID   *types.ID      `json:"delivery_person_id,omitempty"`
	DeliveryPersonName *string        `json:"delivery_person_name,omitempty"`
	DeliveryCode       *string        `json:"delivery_code,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	// Read-view fields joined from the customer row.
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
}

type Item struct {
	ID          types.ID
	OrderID     types.ID
	Ref         catalog.Ref
	ProductName string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
}

// MarshalJSON flattens the catalog reference into the three column names the
// clients know.
func (i Item) MarshalJSON() ([]byte, error) {
	productID, readyID, maisonID := i.Ref.Columns()
	return json.Marshal(struct {
		ID               types.ID `json:"id"`
		OrderID          types.ID `json:"order_id"`
		ProductID        *string  `json:"product_id"`
		ReadyCocktailID  *string  `json:"ready_cocktail_id"`
		CocktailMaisonID *string  `json:"cocktail_maison_id"`
		ProductType      string   `json:"product_type"`
		ProductName      string   `json:"product_name"`
		Quantity         int      `json:"quantity"`
		UnitPrice        float64  `json:"unit_price"`
		Subtotal         float64  `json:"subtotal"`
	}{i.ID, i.OrderID, productID, readyID, maisonID, string(i.Ref.Kind), i.ProductName, i.Quantity, i.UnitPrice, i.Subtotal})
}

type Detail struct {
	Order
	Items  []Item  `json:"items"`
	Events []Event `json:"events"`
}

const (
	ActorCustomer  = "customer"
	ActorAdmin     = "admin"
	ActorChauffeur = "chauffeur"
	ActorSystem    = "system"
)

// Actor identifies who requested a change; ID is a Firebase uid or a chauffeur id.
type Actor struct {
	Type string
	ID   string
}

// Event is one row of the status trail, oldest first.
type Event struct {
	ID         int64     `json:"id"`
	OrderID    types.ID  `json:"order_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *string   `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Filter struct {
	Status     Status
	CustomerID types.ID
	DriverID   types.ID
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type Page struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}
