// README: Order handlers: create, get/list, patch, admin transitions, assignment and dispatch.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"livraison/internal/http/middleware"
	"livraison/internal/modules/notification"
	"livraison/internal/modules/order"
	"livraison/internal/types"
)

type OrderService interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.Detail, error)
	Get(ctx context.Context, id string) (*order.Detail, error)
	List(ctx context.Context, f order.Filter) (*order.Page, error)
	Update(ctx context.Context, cmd order.UpdateCommand) (*order.Detail, error)
	Confirm(ctx context.Context, orderID string, actor order.Actor) (*order.Detail, error)
	MarkEnRoute(ctx context.Context, orderID string, actor order.Actor) (*order.Detail, error)
	MarkPickedUp(ctx context.Context, orderID string, actor order.Actor) (*order.Detail, error)
	MarkInTransit(ctx context.Context, orderID string, actor order.Actor) (*order.Detail, error)
	MarkDelivered(ctx context.Context, orderID string, actor order.Actor) (*order.Detail, error)
	Cancel(ctx context.Context, orderID string, actor order.Actor) (*order.Detail, error)
	Assign(ctx context.Context, cmd order.AssignCommand) (*order.Detail, error)
	DispatchToDrivers(ctx context.Context, cmd order.DispatchCommand) ([]notification.Notification, error)
}

type OrderHandler struct {
	order OrderService
}

func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{order: svc}
}

// Create accepts the storefront checkout payload.
func (h *OrderHandler) Create(c *gin.Context) {
	var cmd order.CreateCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

// Get returns one order with its items when ?id= is given, otherwise a
// filtered page of orders (admins only).
func (h *OrderHandler) Get(c *gin.Context) {
	if id := c.Query("id"); id != "" {
		d, err := h.order.Get(c.Request.Context(), id)
		if err != nil {
			writeOrderError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, d)
		return
	}
	if middleware.CallerRole(c) != middleware.RoleAdmin {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}

	f, err := parseFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.order.List(c.Request.Context(), f)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, page)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseFilter(c *gin.Context) (order.Filter, error) {
	f := order.Filter{
		Status:     order.Status(c.Query("status")),
		CustomerID: types.ID(c.Query("customer_id")),
		DriverID:   types.ID(c.Query("delivery_person_id")),
	}
	for _, id := range []types.ID{f.CustomerID, f.DriverID} {
		if id != "" && !id.IsUUID() {
			return f, filterError("ids must be UUIDs")
		}
	}
	var err error
	if f.Page, err = intQuery(c, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		return f, err
	}
	if f.From, err = timeQuery(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = timeQuery(c, "to"); err != nil {
		return f, err
	}
	return f, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, filterError(key + " must be an integer")
	}
	return n, nil
}

// timeQuery accepts RFC 3339 or a bare date.
func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, filterError(key + " must be a date")
}

type patchOrderReq struct {
	Status           *order.Status        `json:"status"`
	PaymentStatus    *order.PaymentStatus `json:"payment_status"`
	DeliveryPersonID *string              `json:"delivery_person_id"`
	DeliveryNotes    *string              `json:"delivery_notes"`
}

// Patch is the admin partial update, addressed by ?id=.
func (h *OrderHandler) Patch(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	var req patchOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var cmd order.UpdateCommand
	if err := copier.Copy(&cmd, &req); err != nil {
		internalError(c, err)
		return
	}
	cmd.OrderID = id
	cmd.Actor = actor(c)

	d, err := h.order.Update(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type transitionFunc func(ctx context.Context, orderID string, actor order.Actor) (*order.Detail, error)

func (h *OrderHandler) transition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := fn(c.Request.Context(), c.Param("id"), actor(c))
		if err != nil {
			writeOrderError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, d)
	}
}

func (h *OrderHandler) Confirm() gin.HandlerFunc   { return h.transition(h.order.Confirm) }
func (h *OrderHandler) EnRoute() gin.HandlerFunc   { return h.transition(h.order.MarkEnRoute) }
func (h *OrderHandler) PickedUp() gin.HandlerFunc  { return h.transition(h.order.MarkPickedUp) }
func (h *OrderHandler) InTransit() gin.HandlerFunc { return h.transition(h.order.MarkInTransit) }
func (h *OrderHandler) Deliver() gin.HandlerFunc   { return h.transition(h.order.MarkDelivered) }
func (h *OrderHandler) Cancel() gin.HandlerFunc    { return h.transition(h.order.Cancel) }

type chauffeurReq struct {
	ChauffeurID string `json:"chauffeur_id"`
}

func (h *OrderHandler) Assign(c *gin.Context) {
	var req chauffeurReq
	if err := c.ShouldBindJSON(&req); err != nil || req.ChauffeurID == "" {
		writeError(c, http.StatusBadRequest, "chauffeur_id is required")
		return
	}
	d, err := h.order.Assign(c.Request.Context(), order.AssignCommand{
		OrderID:     c.Param("id"),
		ChauffeurID: req.ChauffeurID,
		Actor:       actor(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

// Dispatch offers the order to one driver or to every eligible one.
func (h *OrderHandler) Dispatch(c *gin.Context) {
	var req chauffeurReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	sent, err := h.order.DispatchToDrivers(c.Request.Context(), order.DispatchCommand{
		OrderID:     c.Param("id"),
		ChauffeurID: req.ChauffeurID,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"notifications": sent})
}
