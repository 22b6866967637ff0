// README: Presence service tests with in-memory repository and GEO index.
package chauffeur

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livraison/internal/config"
	"livraison/internal/types"
)

type memRepo struct {
	mu     sync.Mutex
	rows   map[types.ID]*Chauffeur
	writes int
	failOn error
}

func newMemRepo(cs ...Chauffeur) *memRepo {
	r := &memRepo{rows: make(map[types.ID]*Chauffeur)}
	for i := range cs {
		c := cs[i]
		r.rows[c.ID] = &c
	}
	return r
}

func (r *memRepo) Get(_ context.Context, id types.ID) (*Chauffeur, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) List(_ context.Context) ([]Chauffeur, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Chauffeur
	for _, c := range r.rows {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memRepo) SetAvailability(_ context.Context, id types.ID, disponible bool, statut *Statut, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.failOn != nil {
		return r.failOn
	}
	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.Disponible = disponible
	c.DerniereActivite = &at
	if statut != nil {
		c.Statut = *statut
	}
	return nil
}

func (r *memRepo) UpdateLocation(_ context.Context, u LocationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	c, ok := r.rows[u.ChauffeurID]
	if !ok {
		return ErrNotFound
	}
	lat, lng := u.Position.Lat, u.Position.Lng
	c.Latitude, c.Longitude = &lat, &lng
	at := u.RecordedAt
	c.DerniereActivite = &at
	return nil
}

func (r *memRepo) MarkStaleOffline(_ context.Context, cutoff time.Time) ([]types.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []types.ID
	for id, c := range r.rows {
		if (c.DerniereActivite == nil || c.DerniereActivite.Before(cutoff)) && (c.Disponible || c.Statut != StatutHorsLigne) {
			c.Disponible = false
			c.Statut = StatutHorsLigne
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memRepo) DeviceToken(_ context.Context, id types.ID) (string, error) {
	c, err := r.Get(context.Background(), id)
	if err != nil {
		return "", err
	}
	return c.FCMToken, nil
}

type memGeo struct {
	mu      sync.Mutex
	pos     map[types.ID]types.Point
	ranked  []types.ID
	failAll bool
}

func newMemGeo() *memGeo { return &memGeo{pos: make(map[types.ID]types.Point)} }

func (g *memGeo) SetPosition(_ context.Context, id types.ID, p types.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAll {
		return errors.New("redis down")
	}
	g.pos[id] = p
	return nil
}

func (g *memGeo) Remove(_ context.Context, ids ...types.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		delete(g.pos, id)
	}
	return nil
}

func (g *memGeo) Nearby(_ context.Context, _ types.Point, _ float64) ([]types.ID, error) {
	if g.failAll {
		return nil, errors.New("redis down")
	}
	return g.ranked, nil
}

const (
	driverA = types.ID("11111111-1111-4111-8111-111111111111")
	driverB = types.ID("22222222-2222-4222-8222-222222222222")
	driverC = types.ID("33333333-3333-4333-8333-333333333333")
)

var testPresence = config.PresenceConfig{
	StaleAfter:    30 * time.Second,
	SweepInterval: 15 * time.Second,
	NearbyKm:      5,
	DispatchLimit: 10,
}

func newTestService(repo Repository, geo Geo, now time.Time) *Service {
	svc := NewService(repo, geo, testPresence)
	svc.now = func() time.Time { return now }
	return svc
}

func TestHeartbeatRejectsMalformedIDWithoutWriting(t *testing.T) {
	repo := newMemRepo(Chauffeur{ID: driverA})
	svc := newTestService(repo, nil, time.Now())

	err := svc.Heartbeat(context.Background(), HeartbeatCommand{ChauffeurID: "not-a-uuid", Disponible: true})
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Zero(t, repo.writes)
}

func TestHeartbeatStampsActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := newMemRepo(Chauffeur{ID: driverA})
	svc := newTestService(repo, nil, now)

	require.NoError(t, svc.Heartbeat(context.Background(), HeartbeatCommand{ChauffeurID: string(driverA), Disponible: true}))

	v, err := svc.Get(context.Background(), driverA)
	require.NoError(t, err)
	assert.True(t, v.Disponible)
	assert.Equal(t, StatutEnLigne, v.Presence)
}

func TestHeartbeatUnknownDriver(t *testing.T) {
	svc := newTestService(newMemRepo(), nil, time.Now())
	err := svc.Heartbeat(context.Background(), HeartbeatCommand{ChauffeurID: string(driverB), Disponible: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusOfflineDropsFromIndex(t *testing.T) {
	repo := newMemRepo(Chauffeur{ID: driverA, Disponible: true})
	geo := newMemGeo()
	geo.pos[driverA] = types.Point{Lat: 5, Lng: -4}
	svc := newTestService(repo, geo, time.Now())

	require.NoError(t, svc.SetStatus(context.Background(), StatusCommand{
		ChauffeurID: string(driverA), Disponible: false, Statut: StatutHorsLigne,
	}))

	c, _ := repo.Get(context.Background(), driverA)
	assert.False(t, c.Disponible)
	assert.Equal(t, StatutHorsLigne, c.Statut)
	assert.NotContains(t, geo.pos, driverA)
}

func TestSetStatusRejectsUnknownStatut(t *testing.T) {
	svc := newTestService(newMemRepo(Chauffeur{ID: driverA}), nil, time.Now())
	err := svc.SetStatus(context.Background(), StatusCommand{ChauffeurID: string(driverA), Statut: "en_pause"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestUpdateLocationGeoFailureIsSwallowed(t *testing.T) {
	repo := newMemRepo(Chauffeur{ID: driverA})
	geo := newMemGeo()
	geo.failAll = true
	svc := newTestService(repo, geo, time.Now())

	err := svc.UpdateLocation(context.Background(), LocationUpdate{
		ChauffeurID: driverA, Position: types.Point{Lat: 5.35, Lng: -4.02},
	})
	require.NoError(t, err)

	c, _ := repo.Get(context.Background(), driverA)
	p, ok := c.Position()
	require.True(t, ok)
	assert.Equal(t, 5.35, p.Lat)
}

func TestUpdateLocationValidatesRange(t *testing.T) {
	svc := newTestService(newMemRepo(Chauffeur{ID: driverA}), nil, time.Now())
	err := svc.UpdateLocation(context.Background(), LocationUpdate{ChauffeurID: driverA, Position: types.Point{Lat: 91}})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestSweepForcesStaleDriversOffline(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fresh := now.Add(-10 * time.Second)
	stale := now.Add(-2 * time.Minute)
	repo := newMemRepo(
		Chauffeur{ID: driverA, Disponible: true, Statut: StatutEnLigne, DerniereActivite: &fresh},
		Chauffeur{ID: driverB, Disponible: true, Statut: StatutEnLigne, DerniereActivite: &stale},
	)
	svc := newTestService(repo, newMemGeo(), now)

	n, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, _ := repo.Get(context.Background(), driverB)
	assert.False(t, b.Disponible)
	a, _ := repo.Get(context.Background(), driverA)
	assert.True(t, a.Disponible)
}

func TestEligibleOrdersNearestFirstAndSkipsBusy(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Second)
	repo := newMemRepo(
		Chauffeur{ID: driverA, Disponible: true, DerniereActivite: &fresh},
		Chauffeur{ID: driverB, Disponible: true, DerniereActivite: &fresh},
		Chauffeur{ID: driverC, Disponible: true, ActiveDeliveries: 1, DerniereActivite: &fresh},
	)
	geo := newMemGeo()
	geo.ranked = []types.ID{driverC, driverB}
	svc := newTestService(repo, geo, now)

	ids, err := svc.Eligible(context.Background(), &types.Point{Lat: 5.3, Lng: -4})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, driverB, ids[0])
	assert.Equal(t, driverA, ids[1])
}

func TestEligibleRespectsLimit(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Second)
	repo := newMemRepo(
		Chauffeur{ID: driverA, Disponible: true, DerniereActivite: &fresh},
		Chauffeur{ID: driverB, Disponible: true, DerniereActivite: &fresh},
	)
	svc := newTestService(repo, nil, now)
	svc.cfg.DispatchLimit = 1

	ids, err := svc.Eligible(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
