// README: Base handler utilities (JSON helpers, caller identity, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"livraison/internal/http/middleware"
	"livraison/internal/modules/cart"
	"livraison/internal/modules/chauffeur"
	"livraison/internal/modules/notification"
	"livraison/internal/modules/order"
)

type errorResponse struct {
	Error   string              `json:"error"`
	Details []string            `json:"details,omitempty"`
	Items   []order.InvalidItem `json:"invalid_items,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	log.Error().Err(err).Str("component", "http").Str("path", c.FullPath()).Msg("request failed")
	writeError(c, http.StatusInternalServerError, "internal error")
}

func writeOrderError(c *gin.Context, err error) {
	var verr *order.ValidationError
	var items *order.InvalidItemsError
	switch {
	case errors.As(err, &verr):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid order", Details: verr.Problems})
	case errors.As(err, &items):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: items.Error(), Items: items.Items})
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrConflict),
		errors.Is(err, order.ErrDriverUnavailable), errors.Is(err, order.ErrNoDriverAvailable):
		writeError(c, http.StatusConflict, err.Error())
	default:
		internalError(c, err)
	}
}

func writeChauffeurError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chauffeur.ErrInvalidID), errors.Is(err, chauffeur.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, chauffeur.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		internalError(c, err)
	}
}

func writeNotificationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notification.ErrInvalidID), errors.Is(err, notification.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, notification.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	default:
		internalError(c, err)
	}
}

func writeCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrBadRequest), errors.Is(err, cart.ErrInvalidProduct):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		internalError(c, err)
	}
}

// actor maps the authenticated caller onto an order actor.
func actor(c *gin.Context) order.Actor {
	switch middleware.CallerRole(c) {
	case middleware.RoleAdmin:
		return order.Actor{Type: order.ActorAdmin, ID: middleware.CallerUID(c)}
	case middleware.RoleChauffeur:
		return order.Actor{Type: order.ActorChauffeur, ID: middleware.CallerChauffeurID(c)}
	}
	return order.Actor{Type: order.ActorCustomer, ID: middleware.CallerUID(c)}
}

// actsFor reports whether the caller may act for the driver record id. Admins
// may act for anyone; drivers only for the record bound to their token.
func actsFor(c *gin.Context, chauffeurID string) bool {
	switch middleware.CallerRole(c) {
	case middleware.RoleAdmin:
		return true
	case middleware.RoleChauffeur:
		return chauffeurID != "" && middleware.CallerChauffeurID(c) == chauffeurID
	}
	return false
}
