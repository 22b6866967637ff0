// README: Driver app view of the API and its HTTP implementation.
package driverapp

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"livraison/internal/apiclient"
	"livraison/internal/modules/notification"
)

// Fix is one geolocation reading.
type Fix struct {
	Lat     float64
	Lng     float64
	Speed   *float64
	Heading *float64
	At      time.Time
}

type API interface {
	Heartbeat(ctx context.Context, chauffeurID string, disponible bool) error
	SetStatus(ctx context.Context, chauffeurID string, disponible bool, statut string) error
	UpdateLocation(ctx context.Context, chauffeurID string, fix Fix) error
	// Unread returns the driver's unread notifications.
	Unread(ctx context.Context, chauffeurID string) ([]notification.Notification, error)
	Accept(ctx context.Context, notificationID, chauffeurID string) error
	Decline(ctx context.Context, notificationID, chauffeurID string) error
}

type HTTPAPI struct {
	client *apiclient.Client
}

func NewHTTPAPI(baseURL string, token func() string) *HTTPAPI {
	return &HTTPAPI{client: apiclient.New(baseURL, token)}
}

type heartbeatBody struct {
	ChauffeurID string `json:"chauffeur_id"`
	Disponible  bool   `json:"disponible"`
}

type statusBody struct {
	ChauffeurID string `json:"chauffeur_id"`
	Disponible  bool   `json:"disponible"`
	Statut      string `json:"statut,omitempty"`
}

type locationBody struct {
	ChauffeurID string    `json:"chauffeur_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Vitesse     *float64  `json:"vitesse,omitempty"`
	Direction   *float64  `json:"direction,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type offerBody struct {
	ChauffeurID string `json:"chauffeur_id"`
}

func (a *HTTPAPI) Heartbeat(ctx context.Context, chauffeurID string, disponible bool) error {
	return a.client.Do(ctx, http.MethodPost, "/chauffeurs/heartbeat", heartbeatBody{chauffeurID, disponible}, nil)
}

func (a *HTTPAPI) SetStatus(ctx context.Context, chauffeurID string, disponible bool, statut string) error {
	return a.client.Do(ctx, http.MethodPost, "/chauffeurs/status", statusBody{chauffeurID, disponible, statut}, nil)
}

func (a *HTTPAPI) UpdateLocation(ctx context.Context, chauffeurID string, fix Fix) error {
	body := locationBody{
		ChauffeurID: chauffeurID,
		Latitude:    fix.Lat,
		Longitude:   fix.Lng,
		Vitesse:     fix.Speed,
		Direction:   fix.Heading,
		RecordedAt:  fix.At,
	}
	return a.client.Do(ctx, http.MethodPost, "/chauffeurs/location", body, nil)
}

func (a *HTTPAPI) Unread(ctx context.Context, chauffeurID string) ([]notification.Notification, error) {
	q := url.Values{"chauffeur_id": {chauffeurID}, "unread": {"true"}}
	var out []notification.Notification
	if err := a.client.Do(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) Accept(ctx context.Context, notificationID, chauffeurID string) error {
	return a.client.Do(ctx, http.MethodPost, "/chauffeurs/notifications/"+url.PathEscape(notificationID)+"/accept", offerBody{chauffeurID}, nil)
}

func (a *HTTPAPI) Decline(ctx context.Context, notificationID, chauffeurID string) error {
	return a.client.Do(ctx, http.MethodPost, "/chauffeurs/notifications/"+url.PathEscape(notificationID)+"/decline", offerBody{chauffeurID}, nil)
}
