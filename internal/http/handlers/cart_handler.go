// README: Server cart handlers: read, replace and the login merge.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"livraison/internal/http/middleware"
	"livraison/internal/modules/cart"
)

type CartService interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	Save(ctx context.Context, userID string, c cart.Cart) (cart.Cart, error)
	SyncCart(ctx context.Context, userID string, local cart.Cart) (cart.Cart, error)
}

type CartHandler struct {
	cart CartService
}

func NewCartHandler(svc CartService) *CartHandler {
	return &CartHandler{cart: svc}
}

// owner checks the caller is the cart's user or an admin.
func owner(c *gin.Context) (string, bool) {
	userID := c.Param("user_id")
	if middleware.CallerUID(c) != userID && middleware.CallerRole(c) != middleware.RoleAdmin {
		writeError(c, http.StatusForbidden, "forbidden")
		return "", false
	}
	return userID, true
}

func (h *CartHandler) Get(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	got, err := h.cart.Get(c.Request.Context(), userID)
	if err != nil {
		writeCartError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, got)
}

func (h *CartHandler) Put(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	var body cart.Cart
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	saved, err := h.cart.Save(c.Request.Context(), userID, body)
	if err != nil {
		writeCartError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, saved)
}

// Sync merges the posted local cart with the stored one.
func (h *CartHandler) Sync(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	var local cart.Cart
	if err := c.ShouldBindJSON(&local); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	merged, err := h.cart.SyncCart(c.Request.Context(), userID, local)
	if err != nil {
		writeCartError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, merged)
}
