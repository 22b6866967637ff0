// README: Driver app loops: heartbeat, geolocation push, notification poll, offer overlay, toggle and logout.
package driverapp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"livraison/internal/modules/notification"
	"livraison/internal/types"
)

var (
	// ErrReauth means the stored driver id is unusable and the driver must
	// sign in again.
	ErrReauth  = errors.New("driver must re-authenticate")
	ErrNoOffer = errors.New("no offer is being shown")
)

const logoutTimeout = 5 * time.Second

type Config struct {
	HeartbeatEvery time.Duration
	LocateEvery    time.Duration
	PollEvery      time.Duration
	Geo            GeoOptions
}

func DefaultConfig() Config {
	return Config{
		HeartbeatEvery: 10 * time.Second,
		LocateEvery:    30 * time.Second,
		PollEvery:      10 * time.Second,
		Geo:            DefaultGeoOptions,
	}
}

// View is what the dashboard renders: the blocking offer, if any, and the
// non-blocking inbox.
type View struct {
	Available bool
	Offer     *notification.Notification
	Inbox     []notification.Notification
}

type App struct {
	api         API
	locator     Locator
	chauffeurID string
	cfg         Config
	logger      zerolog.Logger

	mu        sync.Mutex
	available bool
	offer     *notification.Notification
	inbox     []notification.Notification
	onChange  func(View)
	stop      context.CancelFunc
}

// New returns ErrReauth for an id that is not UUID-shaped; nothing is sent.
// locator may be nil for devices without GPS.
func New(api API, locator Locator, chauffeurID string, cfg Config) (*App, error) {
	if !types.IsUUID(chauffeurID) {
		log.Warn().Str("component", "driverapp").Str("chauffeur_id", chauffeurID).Msg("malformed driver id; re-authentication required")
		return nil, ErrReauth
	}
	def := DefaultConfig()
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = def.HeartbeatEvery
	}
	if cfg.LocateEvery <= 0 {
		cfg.LocateEvery = def.LocateEvery
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = def.PollEvery
	}
	return &App{
		api:         api,
		locator:     locator,
		chauffeurID: chauffeurID,
		cfg:         cfg,
		logger:      log.With().Str("component", "driverapp").Str("chauffeur_id", chauffeurID).Logger(),
		available:   true,
		onChange:    func(View) {},
	}, nil
}

// OnChange registers the render callback. It runs on the loop goroutine.
func (a *App) OnChange(fn func(View)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

func (a *App) viewLocked() View {
	v := View{Available: a.available, Inbox: append([]notification.Notification{}, a.inbox...)}
	if a.offer != nil {
		cp := *a.offer
		v.Offer = &cp
	}
	return v
}

func (a *App) changed() {
	a.mu.Lock()
	v, fn := a.viewLocked(), a.onChange
	a.mu.Unlock()
	fn(v)
}

// Run performs every loop once and then on its own cadence until ctx is
// done or Logout is called.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.stop = cancel
	a.mu.Unlock()
	defer cancel()

	heartbeat := time.NewTicker(a.cfg.HeartbeatEvery)
	defer heartbeat.Stop()
	poll := time.NewTicker(a.cfg.PollEvery)
	defer poll.Stop()

	var locate <-chan time.Time
	if a.locator != nil {
		t := time.NewTicker(a.cfg.LocateEvery)
		defer t.Stop()
		locate = t.C
	}

	a.Heartbeat(ctx)
	if a.locator != nil {
		a.PushLocation(ctx)
	}
	a.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			a.Heartbeat(ctx)
		case <-locate:
			a.PushLocation(ctx)
		case <-poll.C:
			a.Poll(ctx)
		}
	}
}

// Heartbeat reports the driver as connected with its current availability.
func (a *App) Heartbeat(ctx context.Context) {
	a.mu.Lock()
	available := a.available
	a.mu.Unlock()
	if err := a.api.Heartbeat(ctx, a.chauffeurID, available); err != nil {
		a.logger.Warn().Err(err).Msg("heartbeat failed")
	}
}

// PushLocation reads the position and sends it with a second heartbeat.
// Geolocation failures are logged and leave the other loops alone.
func (a *App) PushLocation(ctx context.Context) {
	fix, err := a.locator.Locate(ctx, a.cfg.Geo)
	if err != nil {
		a.logger.Warn().Err(err).Msg("geolocation failed")
		return
	}
	if err := a.api.UpdateLocation(ctx, a.chauffeurID, fix); err != nil {
		a.logger.Warn().Err(err).Msg("location push failed")
		return
	}
	a.Heartbeat(ctx)
}

// Poll fetches unread notifications. The first unread new-order offer is
// shown as the blocking overlay when none is showing; other types go to the
// inbox.
func (a *App) Poll(ctx context.Context) {
	unread, err := a.api.Unread(ctx, a.chauffeurID)
	if err != nil {
		// Keep the last known state on screen.
		a.logger.Warn().Err(err).Msg("notification poll failed")
		return
	}

	a.mu.Lock()
	if a.offer != nil && !containsUnread(unread, a.offer.ID) {
		// Answered elsewhere or taken by another driver.
		a.offer = nil
	}
	inbox := make([]notification.Notification, 0, len(unread))
	for i := range unread {
		n := unread[i]
		if n.Read {
			continue
		}
		if n.Type != notification.TypeNouvelleCommande {
			inbox = append(inbox, n)
			continue
		}
		if a.offer == nil {
			a.offer = &n
		}
	}
	a.inbox = inbox
	a.mu.Unlock()

	a.changed()
}

func containsUnread(list []notification.Notification, id types.ID) bool {
	for _, n := range list {
		if n.ID == id && !n.Read {
			return true
		}
	}
	return false
}

// Accept claims the shown offer. On failure the overlay stays so the driver
// can retry.
func (a *App) Accept(ctx context.Context) error {
	return a.answer(ctx, a.api.Accept, "offer accepted")
}

// Decline dismisses the shown offer; the order stays open for others.
func (a *App) Decline(ctx context.Context) error {
	return a.answer(ctx, a.api.Decline, "offer declined")
}

func (a *App) answer(ctx context.Context, call func(context.Context, string, string) error, msg string) error {
	a.mu.Lock()
	offer := a.offer
	a.mu.Unlock()
	if offer == nil {
		return ErrNoOffer
	}
	if err := call(ctx, string(offer.ID), a.chauffeurID); err != nil {
		a.logger.Warn().Err(err).Str("notification_id", string(offer.ID)).Msg("offer answer failed")
		return err
	}

	a.mu.Lock()
	if a.offer != nil && a.offer.ID == offer.ID {
		a.offer = nil
	}
	a.mu.Unlock()
	a.logger.Info().Str("notification_id", string(offer.ID)).Msg(msg)
	a.changed()
	return nil
}

// Toggle flips availability with one immediate write.
func (a *App) Toggle(ctx context.Context) error {
	a.mu.Lock()
	next := !a.available
	a.mu.Unlock()

	if err := a.api.SetStatus(ctx, a.chauffeurID, next, ""); err != nil {
		a.logger.Warn().Err(err).Bool("disponible", next).Msg("availability toggle failed")
		return err
	}
	a.mu.Lock()
	a.available = next
	a.mu.Unlock()
	a.changed()
	return nil
}

// Logout stops the loops and marks the driver offline, falling back to a
// heartbeat write when the status endpoint fails. It never fails.
func (a *App) Logout(ctx context.Context) {
	a.mu.Lock()
	stop := a.stop
	a.available = false
	a.mu.Unlock()
	if stop != nil {
		stop()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	err := a.api.SetStatus(ctx, a.chauffeurID, false, "hors_ligne")
	if err == nil {
		return
	}
	a.logger.Warn().Err(err).Msg("offline status write failed; trying heartbeat")
	if err := a.api.Heartbeat(ctx, a.chauffeurID, false); err != nil {
		a.logger.Warn().Err(err).Msg("offline fallback failed")
	}
}
