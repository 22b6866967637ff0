// README: Driver (chauffeur) record and the single presence projection every screen consumes.
package chauffeur

import (
	"time"

	"livraison/internal/types"
)

type Statut string

const (
	StatutEnLigne   Statut = "en_ligne"
	StatutOccupe    Statut = "occupe"
	StatutHorsLigne Statut = "hors_ligne"
)

func (s Statut) Valid() bool {
	switch s {
	case StatutEnLigne, StatutOccupe, StatutHorsLigne:
		return true
	}
	return false
}

type Chauffeur struct {
	ID               types.ID   `json:"id"`
	Nom              string     `json:"nom"`
	Telephone        string     `json:"telephone"`
	Email            *string    `json:"email,omitempty"`
	VehicleType      string     `json:"vehicle_type"`
	VehiclePlate     string     `json:"vehicle_plate"`
	Disponible       bool       `json:"disponible"`
	Statut           Statut     `json:"statut"`
	ActiveDeliveries int        `json:"active_deliveries"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Vitesse          *float64   `json:"vitesse,omitempty"`
	Direction        *float64   `json:"direction,omitempty"`
	DerniereActivite *time.Time `json:"derniere_activite,omitempty"`
	FCMToken         string     `json:"-"`
}

// Position returns the last known GPS point, if any.
func (c Chauffeur) Position() (types.Point, bool) {
	if c.Latitude == nil || c.Longitude == nil {
		return types.Point{}, false
	}
	return types.Point{Lat: *c.Latitude, Lng: *c.Longitude}, true
}

// Presence derives the driver's status from the availability flag and the
// heartbeat timestamp. A driver without a heartbeat newer than staleAfter is
// offline whatever the stored statut says.
func Presence(c Chauffeur, now time.Time, staleAfter time.Duration) Statut {
	if c.DerniereActivite == nil || now.Sub(*c.DerniereActivite) > staleAfter {
		return StatutHorsLigne
	}
	if c.ActiveDeliveries > 0 {
		return StatutOccupe
	}
	if !c.Disponible {
		return StatutHorsLigne
	}
	return StatutEnLigne
}

// Assignable reports whether new orders may be offered to the driver.
func Assignable(c Chauffeur, now time.Time, staleAfter time.Duration) bool {
	return c.Disponible && Presence(c, now, staleAfter) == StatutEnLigne
}

type View struct {
	Chauffeur
	Presence Statut `json:"presence"`
}
