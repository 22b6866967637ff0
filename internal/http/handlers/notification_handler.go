// README: Driver inbox handlers: list, read toggle, accept and decline of new-order offers.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"livraison/internal/http/middleware"
	"livraison/internal/modules/notification"
	"livraison/internal/modules/order"
)

type NotificationService interface {
	List(ctx context.Context, chauffeurID string, unreadOnly bool) ([]notification.Notification, error)
	MarkRead(ctx context.Context, id, chauffeurID string, read bool) error
}

// OfferService answers new-order offers.
type OfferService interface {
	AcceptAssignment(ctx context.Context, cmd order.OfferCommand) (*order.Detail, error)
	DeclineAssignment(ctx context.Context, cmd order.OfferCommand) error
}

type NotificationHandler struct {
	notifications NotificationService
	offers        OfferService
}

func NewNotificationHandler(notifications NotificationService, offers OfferService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, offers: offers}
}

func (h *NotificationHandler) List(c *gin.Context) {
	chauffeurID := c.Query("chauffeur_id")
	if !actsFor(c, chauffeurID) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	unread, _ := strconv.ParseBool(c.Query("unread"))
	list, err := h.notifications.List(c.Request.Context(), chauffeurID, unread)
	if err != nil {
		writeNotificationError(c, err)
		return
	}
	if list == nil {
		list = []notification.Notification{}
	}
	writeJSON(c, http.StatusOK, list)
}

type markReadReq struct {
	NotificationID string `json:"notification_id"`
	ID             string `json:"id"` // older clients
	Read           *bool  `json:"read"`
}

func (r markReadReq) notification() string {
	if r.NotificationID != "" {
		return r.NotificationID
	}
	return r.ID
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil || req.notification() == "" {
		writeError(c, http.StatusBadRequest, "notification_id is required")
		return
	}
	read := true
	if req.Read != nil {
		read = *req.Read
	}
	owner := ""
	if middleware.CallerRole(c) != middleware.RoleAdmin {
		owner = middleware.CallerChauffeurID(c)
		if owner == "" {
			writeError(c, http.StatusForbidden, "forbidden")
			return
		}
	}
	if err := h.notifications.MarkRead(c.Request.Context(), req.notification(), owner, read); err != nil {
		writeNotificationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) offer(c *gin.Context) (order.OfferCommand, bool) {
	var req chauffeurReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return order.OfferCommand{}, false
		}
	}
	if req.ChauffeurID == "" {
		req.ChauffeurID = middleware.CallerChauffeurID(c)
	}
	if !actsFor(c, req.ChauffeurID) {
		writeError(c, http.StatusForbidden, "forbidden")
		return order.OfferCommand{}, false
	}
	return order.OfferCommand{NotificationID: c.Param("id"), ChauffeurID: req.ChauffeurID}, true
}

// Accept assigns the offered order to the driver.
func (h *NotificationHandler) Accept(c *gin.Context) {
	cmd, ok := h.offer(c)
	if !ok {
		return
	}
	d, err := h.offers.AcceptAssignment(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *NotificationHandler) Decline(c *gin.Context) {
	cmd, ok := h.offer(c)
	if !ok {
		return
	}
	if err := h.offers.DeclineAssignment(c.Request.Context(), cmd); err != nil {
		writeOrderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
