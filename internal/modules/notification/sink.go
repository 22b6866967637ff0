// README: Customer-facing message sinks (WhatsApp webhook, e-mail) and FCM push to drivers.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"gopkg.in/gomail.v2"
)

// CustomerMessage is the payload handed to customer sinks on a status change.
type CustomerMessage struct {
	OrderID      string  `json:"orderId"`
	Phone        string  `json:"phone"`
	Status       string  `json:"status"`
	OrderNumber  string  `json:"orderNumber"`
	CustomerName string  `json:"customerName"`
	TotalAmount  float64 `json:"totalAmount"`
	DeliveryDate *string `json:"deliveryDate,omitempty"`
	DeliveryTime *string `json:"deliveryTime,omitempty"`
	Email        string  `json:"-"`
}

type CustomerSink interface {
	Send(ctx context.Context, msg CustomerMessage) error
}

// WhatsAppSink posts the message as JSON to a webhook.
type WhatsAppSink struct {
	URL    string
	Token  string
	Client *http.Client
}

func NewWhatsAppSink(url, token string) *WhatsAppSink {
	return &WhatsAppSink{URL: url, Token: token, Client: http.DefaultClient}
}

func (s *WhatsAppSink) Send(ctx context.Context, msg CustomerMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp webhook: status %d", resp.StatusCode)
	}
	return nil
}

// Mailer is satisfied by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSink mails the customer when an address is known.
type EmailSink struct {
	From   string
	Mailer Mailer
}

func NewEmailSink(host string, port int, username, password, from string) *EmailSink {
	return &EmailSink{From: from, Mailer: gomail.NewDialer(host, port, username, password)}
}

func (s *EmailSink) Send(ctx context.Context, msg CustomerMessage) error {
	if msg.Email == "" {
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.Email)
	m.SetHeader("Subject", fmt.Sprintf("Commande %s : %s", msg.OrderNumber, statusLabel(msg.Status)))
	m.SetBody("text/plain", customerText(msg))

	done := make(chan error, 1)
	go func() { done <- s.Mailer.DialAndSend(m) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiSink fans a message out to every sink and joins their errors.
type MultiSink []CustomerSink

func (m MultiSink) Send(ctx context.Context, msg CustomerMessage) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var statusLabels = map[string]string{
	"en_attente":          "en attente",
	"recherche_chauffeur": "confirmée, recherche d'un livreur",
	"affecte":             "livreur affecté",
	"en_route_pickup":     "livreur en route",
	"recupere":            "commande récupérée",
	"en_livraison":        "en cours de livraison",
	"livre":               "livrée",
	"annule":              "annulée",
}

func statusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

func customerText(msg CustomerMessage) string {
	text := fmt.Sprintf("Bonjour %s, votre commande %s est %s. Montant : %s FCFA.",
		msg.CustomerName, msg.OrderNumber, statusLabel(msg.Status),
		strconv.FormatFloat(msg.TotalAmount, 'f', 0, 64))
	if msg.DeliveryDate != nil {
		text += " Livraison prévue le " + *msg.DeliveryDate
		if msg.DeliveryTime != nil {
			text += " à " + *msg.DeliveryTime
		}
		text += "."
	}
	return text
}

type Pusher interface {
	Push(ctx context.Context, deviceToken string, n Notification) error
}

type FCMPusher struct {
	client *messaging.Client
}

func NewFCMPusher(client *messaging.Client) *FCMPusher {
	return &FCMPusher{client: client}
}

func (p *FCMPusher) Push(ctx context.Context, deviceToken string, n Notification) error {
	data := map[string]string{
		"type":            string(n.Type),
		"notification_id": string(n.ID),
	}
	if n.OrderID != nil {
		data["order_id"] = string(*n.OrderID)
	}
	if n.OrderNumber != nil {
		data["order_number"] = *n.OrderNumber
	}
	title := "Livraison"
	if n.Titre != nil {
		title = *n.Titre
	}
	msg := &messaging.Message{
		Token: deviceToken,
		Data:  data,
		Notification: &messaging.Notification{
			Title: title,
			Body:  n.Message,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending FCM to driver %s: %w", n.ChauffeurID, err)
	}
	return nil
}
