// README: Driver presence handlers: heartbeat, status toggle/logout, GPS push, admin list.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"livraison/internal/modules/chauffeur"
	"livraison/internal/types"
)

type ChauffeurService interface {
	Heartbeat(ctx context.Context, cmd chauffeur.HeartbeatCommand) error
	SetStatus(ctx context.Context, cmd chauffeur.StatusCommand) error
	UpdateLocation(ctx context.Context, u chauffeur.LocationUpdate) error
	List(ctx context.Context) ([]chauffeur.View, error)
}

type ChauffeurHandler struct {
	chauffeur ChauffeurService
}

func NewChauffeurHandler(svc ChauffeurService) *ChauffeurHandler {
	return &ChauffeurHandler{chauffeur: svc}
}

type heartbeatReq struct {
	ChauffeurID string `json:"chauffeur_id" binding:"required"`
	Disponible  bool   `json:"disponible"`
}

type statusReq struct {
	ChauffeurID string           `json:"chauffeur_id" binding:"required"`
	Disponible  bool             `json:"disponible"`
	Statut      chauffeur.Statut `json:"statut"`
}

type locationReq struct {
	ChauffeurID string   `json:"chauffeur_id" binding:"required"`
	Latitude    *float64 `json:"latitude" binding:"required"`
	Longitude   *float64 `json:"longitude" binding:"required"`
	Vitesse     *float64 `json:"vitesse"`
	Direction   *float64 `json:"direction"`
}

func (h *ChauffeurHandler) Heartbeat(c *gin.Context) {
	var req heartbeatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "chauffeur_id is required")
		return
	}
	if !actsFor(c, req.ChauffeurID) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	var cmd chauffeur.HeartbeatCommand
	if err := copier.Copy(&cmd, &req); err != nil {
		internalError(c, err)
		return
	}
	if err := h.chauffeur.Heartbeat(c.Request.Context(), cmd); err != nil {
		writeChauffeurError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status is the explicit availability toggle and the logout write.
func (h *ChauffeurHandler) Status(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "chauffeur_id is required")
		return
	}
	if !actsFor(c, req.ChauffeurID) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	var cmd chauffeur.StatusCommand
	if err := copier.Copy(&cmd, &req); err != nil {
		internalError(c, err)
		return
	}
	if err := h.chauffeur.SetStatus(c.Request.Context(), cmd); err != nil {
		writeChauffeurError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChauffeurHandler) Location(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "chauffeur_id, latitude and longitude are required")
		return
	}
	if !actsFor(c, req.ChauffeurID) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	err := h.chauffeur.UpdateLocation(c.Request.Context(), chauffeur.LocationUpdate{
		ChauffeurID: types.ID(req.ChauffeurID),
		Position:    types.Point{Lat: *req.Latitude, Lng: *req.Longitude},
		Speed:       req.Vitesse,
		Heading:     req.Direction,
	})
	if err != nil {
		writeChauffeurError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List returns every driver with its presence projection.
func (h *ChauffeurHandler) List(c *gin.Context) {
	all, err := h.chauffeur.List(c.Request.Context())
	if err != nil {
		writeChauffeurError(c, err)
		return
	}
	if all == nil {
		all = []chauffeur.View{}
	}
	writeJSON(c, http.StatusOK, all)
}
