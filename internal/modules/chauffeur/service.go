// README: Driver presence service: heartbeats, explicit toggles, GPS pushes, stale sweep and dispatch candidates.
package chauffeur

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"livraison/internal/config"
	"livraison/internal/types"
)

var (
	ErrNotFound   = errors.New("chauffeur not found")
	ErrInvalidID  = errors.New("chauffeur id must be a UUID")
	ErrBadRequest = errors.New("bad request")
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Chauffeur, error)
	List(ctx context.Context) ([]Chauffeur, error)
	SetAvailability(ctx context.Context, id types.ID, disponible bool, statut *Statut, at time.Time) error
	UpdateLocation(ctx context.Context, u LocationUpdate) error
	MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]types.ID, error)
	DeviceToken(ctx context.Context, id types.ID) (string, error)
}

type Geo interface {
	SetPosition(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, ids ...types.ID) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type HeartbeatCommand struct {
	ChauffeurID string
	Disponible  bool
}

type StatusCommand struct {
	ChauffeurID string
	Disponible  bool
	// Statut is optional; empty derives it from availability and load.
	Statut Statut
}

type LocationUpdate struct {
	ChauffeurID types.ID
	Position    types.Point
	Speed       *float64
	Heading     *float64
	RecordedAt  time.Time
}

type Service struct {
	store Repository
	geo   Geo
	cfg   config.PresenceConfig
	now   func() time.Time
}

func NewService(store Repository, geo Geo, cfg config.PresenceConfig) *Service {
	return &Service{store: store, geo: geo, cfg: cfg, now: time.Now}
}

func parseID(raw string) (types.ID, error) {
	if !types.IsUUID(raw) {
		return "", ErrInvalidID
	}
	return types.ID(raw), nil
}

// Heartbeat refreshes the driver's last-activity timestamp and availability.
// Malformed ids are rejected before any write.
func (s *Service) Heartbeat(ctx context.Context, cmd HeartbeatCommand) error {
	id, err := parseID(cmd.ChauffeurID)
	if err != nil {
		return err
	}
	if err := s.store.SetAvailability(ctx, id, cmd.Disponible, nil, s.now()); err != nil {
		return err
	}
	if !cmd.Disponible {
		s.dropFromIndex(ctx, id)
	}
	return nil
}

// SetStatus is the explicit toggle and logout write.
func (s *Service) SetStatus(ctx context.Context, cmd StatusCommand) error {
	id, err := parseID(cmd.ChauffeurID)
	if err != nil {
		return err
	}
	var statut *Statut
	if cmd.Statut != "" {
		if !cmd.Statut.Valid() {
			return fmt.Errorf("%w: unknown statut %q", ErrBadRequest, cmd.Statut)
		}
		statut = &cmd.Statut
	}
	if err := s.store.SetAvailability(ctx, id, cmd.Disponible, statut, s.now()); err != nil {
		return err
	}
	if !cmd.Disponible {
		s.dropFromIndex(ctx, id)
	}
	log.Info().Str("component", "presence").Str("chauffeur_id", string(id)).
		Bool("disponible", cmd.Disponible).Str("statut", string(cmd.Statut)).Msg("status set")
	return nil
}

func (s *Service) UpdateLocation(ctx context.Context, u LocationUpdate) error {
	if !u.ChauffeurID.IsUUID() {
		return ErrInvalidID
	}
	if u.Position.Lat < -90 || u.Position.Lat > 90 || u.Position.Lng < -180 || u.Position.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}
	// Activity is stamped with server time; the client clock is not trusted.
	u.RecordedAt = s.now()
	if err := s.store.UpdateLocation(ctx, u); err != nil {
		return err
	}
	if s.geo != nil {
		if err := s.geo.SetPosition(ctx, u.ChauffeurID, u.Position); err != nil {
			log.Warn().Err(err).Str("component", "presence").Str("chauffeur_id", string(u.ChauffeurID)).
				Msg("geo index update failed")
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*View, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{Chauffeur: *c, Presence: Presence(*c, s.now(), s.cfg.StaleAfter)}, nil
}

func (s *Service) List(ctx context.Context) ([]View, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]View, 0, len(all))
	for _, c := range all {
		out = append(out, View{Chauffeur: c, Presence: Presence(c, now, s.cfg.StaleAfter)})
	}
	return out, nil
}

// Eligible returns assignable drivers, nearest to near first when the GEO
// index can rank them, capped at the configured dispatch limit.
func (s *Service) Eligible(ctx context.Context, near *types.Point) ([]types.ID, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	eligible := make(map[types.ID]bool)
	var ordered []types.ID
	for _, c := range all {
		if Assignable(c, now, s.cfg.StaleAfter) {
			eligible[c.ID] = true
			ordered = append(ordered, c.ID)
		}
	}

	if near != nil && s.geo != nil {
		ranked, err := s.geo.Nearby(ctx, *near, s.cfg.NearbyKm)
		if err != nil {
			log.Warn().Err(err).Str("component", "presence").Msg("geo ranking unavailable")
		} else {
			ordered = rankFirst(ranked, ordered, eligible)
		}
	}

	if s.cfg.DispatchLimit > 0 && len(ordered) > s.cfg.DispatchLimit {
		ordered = ordered[:s.cfg.DispatchLimit]
	}
	return ordered, nil
}

// rankFirst puts the eligible ids from ranked first, in ranked order, then the
// remaining ids in their original order.
func rankFirst(ranked, ids []types.ID, eligible map[types.ID]bool) []types.ID {
	out := make([]types.ID, 0, len(ids))
	seen := make(map[types.ID]bool, len(ids))
	for _, id := range ranked {
		if eligible[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, id := range ids {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) DeviceToken(ctx context.Context, id types.ID) (string, error) {
	return s.store.DeviceToken(ctx, id)
}

// Sweep forces drivers without a recent heartbeat offline.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.MarkStaleOffline(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.dropFromIndex(ctx, ids...)
		log.Info().Str("component", "presence").Int("count", len(ids)).Msg("stale drivers forced offline")
	}
	return len(ids), nil
}

// StartSweeper schedules Sweep every SweepInterval. The caller owns Shutdown.
func (s *Service) StartSweeper() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.SweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepInterval)
			defer cancel()
			if _, err := s.Sweep(ctx); err != nil {
				log.Error().Err(err).Str("component", "presence").Msg("stale sweep failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}

func (s *Service) dropFromIndex(ctx context.Context, ids ...types.ID) {
	if s.geo == nil {
		return
	}
	if err := s.geo.Remove(ctx, ids...); err != nil {
		log.Warn().Err(err).Str("component", "presence").Msg("geo index removal failed")
	}
}
