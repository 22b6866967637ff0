// README: Entry point; loads config, runs migrations, wires services, starts the HTTP server and the presence sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"livraison/internal/config"
	httptransport "livraison/internal/http"
	"livraison/internal/infra"
	"livraison/internal/modules/cart"
	"livraison/internal/modules/chauffeur"
	"livraison/internal/modules/notification"
	"livraison/internal/modules/order"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	infra.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal().Msg("FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("firebase init")
	}

	if err := infra.RunMigrations(cfg.DB.DSN, cfg.DB.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	chauffeurSvc := chauffeur.NewService(chauffeur.NewStore(dbPool), chauffeur.NewGeoIndex(redisClient), cfg.Presence)

	notificationSvc := notification.NewService(
		notification.NewStore(dbPool),
		customerSinks(cfg.Notify),
		notification.NewFCMPusher(fb.Messaging),
		chauffeurSvc,
		cfg.Notify.SinkTimeout,
	)

	orderSvc := order.NewService(order.NewStore(dbPool), notificationSvc, chauffeurSvc, order.Options{
		Fallback:   cfg.FallbackPoint,
		StaleAfter: cfg.Presence.StaleAfter,
	})

	cartSvc := cart.NewService(cart.NewStore(dbPool))

	sweeper, err := chauffeurSvc.StartSweeper()
	if err != nil {
		log.Fatal().Err(err).Msg("presence sweeper")
	}
	defer func() {
		if err := sweeper.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("sweeper shutdown")
		}
	}()

	router := httptransport.NewRouter(httptransport.Deps{
		Orders:        orderSvc,
		Offers:        orderSvc,
		Chauffeurs:    chauffeurSvc,
		Notifications: notificationSvc,
		Carts:         cartSvc,
		Verifier:      fb.Verifier,
	})

	if err := httptransport.NewServer(cfg.HTTP.Addr, router).Run(ctx); err != nil {
		log.Error().Err(err).Msg("http server")
	}
}

// customerSinks builds the configured customer channels; none configured
// means customers are not messaged.
func customerSinks(cfg config.NotifyConfig) notification.CustomerSink {
	var sinks notification.MultiSink
	if cfg.WhatsAppURL != "" {
		sinks = append(sinks, notification.NewWhatsAppSink(cfg.WhatsAppURL, cfg.WhatsAppToken))
	}
	if cfg.SMTPHost != "" {
		sinks = append(sinks, notification.NewEmailSink(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))
	}
	if len(sinks) == 0 {
		log.Warn().Str("component", "notification").Msg("no customer sink configured")
		return nil
	}
	return sinks
}
