// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"livraison/internal/http/handlers"
	"livraison/internal/http/middleware"
	"livraison/internal/infra"
)

// Deps are the services the routes delegate to.
type Deps struct {
	Orders        handlers.OrderService
	Offers        handlers.OfferService
	Chauffeurs    handlers.ChauffeurService
	Notifications handlers.NotificationService
	Carts         handlers.CartService
	Verifier      infra.TokenVerifier
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	adminOnly := middleware.RequireRole(middleware.RoleAdmin)
	staff := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleChauffeur)

	orderHandler := handlers.NewOrderHandler(deps.Orders)
	public := r.Group("/", middleware.OptionalAuth(deps.Verifier))
	public.POST("/orders", orderHandler.Create)
	public.GET("/orders", orderHandler.Get)

	authed := r.Group("/", middleware.Auth(deps.Verifier))
	authed.PATCH("/orders", adminOnly, orderHandler.Patch)
	authed.POST("/orders/:id/confirm", adminOnly, orderHandler.Confirm())
	authed.POST("/orders/:id/assign", adminOnly, orderHandler.Assign)
	authed.POST("/orders/:id/cancel", adminOnly, orderHandler.Cancel())
	authed.POST("/orders/:id/dispatch", adminOnly, orderHandler.Dispatch)
	authed.POST("/orders/:id/en-route", staff, orderHandler.EnRoute())
	authed.POST("/orders/:id/picked-up", staff, orderHandler.PickedUp())
	authed.POST("/orders/:id/in-transit", staff, orderHandler.InTransit())
	authed.POST("/orders/:id/deliver", staff, orderHandler.Deliver())

	chauffeurHandler := handlers.NewChauffeurHandler(deps.Chauffeurs)
	authed.GET("/chauffeurs", adminOnly, chauffeurHandler.List)
	authed.POST("/chauffeurs/heartbeat", staff, chauffeurHandler.Heartbeat)
	authed.POST("/chauffeurs/status", staff, chauffeurHandler.Status)
	authed.POST("/chauffeurs/location", staff, chauffeurHandler.Location)

	notificationHandler := handlers.NewNotificationHandler(deps.Notifications, deps.Offers)
	authed.GET("/notifications", staff, notificationHandler.List)
	authed.PATCH("/chauffeurs/notifications", staff, notificationHandler.MarkRead)
	authed.POST("/chauffeurs/notifications/:id/accept", staff, notificationHandler.Accept)
	authed.POST("/chauffeurs/notifications/:id/decline", staff, notificationHandler.Decline)

	cartHandler := handlers.NewCartHandler(deps.Carts)
	authed.GET("/carts/:user_id", cartHandler.Get)
	authed.PUT("/carts/:user_id", cartHandler.Put)
	authed.POST("/carts/:user_id/sync", cartHandler.Sync)

	return r
}
