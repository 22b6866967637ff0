// README: Chauffeur store backed by PostgreSQL (presence writes, location, assignment load).
package chauffeur

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"livraison/internal/infra"
	"livraison/internal/types"
)

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

const selectColumns = `
	SELECT id::text, nom, telephone, email, vehicle_type, vehicle_plate,
	       disponible, statut, active_deliveries,
	       latitude, longitude, vitesse, direction, derniere_activite, fcm_token
	FROM chauffeurs`

// statutCase recomputes the stored statut from the load and availability columns.
const statutCase = `CASE WHEN active_deliveries > 0 THEN 'occupe' WHEN disponible THEN 'en_ligne' ELSE 'hors_ligne' END`

func scanChauffeur(row pgx.Row) (*Chauffeur, error) {
	var c Chauffeur
	var statut string
	err := row.Scan(
		&c.ID, &c.Nom, &c.Telephone, &c.Email, &c.VehicleType, &c.VehiclePlate,
		&c.Disponible, &statut, &c.ActiveDeliveries,
		&c.Latitude, &c.Longitude, &c.Vitesse, &c.Direction, &c.DerniereActivite, &c.FCMToken,
	)
	if err != nil {
		return nil, err
	}
	c.Statut = Statut(statut)
	return &c, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Chauffeur, error) {
	c, err := scanChauffeur(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetForUpdate locks the driver row for the surrounding transaction.
func (s *Store) GetForUpdate(ctx context.Context, id types.ID) (*Chauffeur, error) {
	c, err := scanChauffeur(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) List(ctx context.Context) ([]Chauffeur, error) {
	rows, err := s.db.Query(ctx, selectColumns+` ORDER BY nom`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chauffeur
	for rows.Next() {
		c, err := scanChauffeur(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetAvailability records a heartbeat or an explicit toggle. A nil statut lets
// the store derive it from availability and current load.
func (s *Store) SetAvailability(ctx context.Context, id types.ID, disponible bool, statut *Statut, at time.Time) error {
	var explicit *string
	if statut != nil {
		v := string(*statut)
		explicit = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE chauffeurs
		SET disponible = $2,
		    derniere_activite = $3,
		    statut = COALESCE($4, CASE WHEN active_deliveries > 0 THEN 'occupe' WHEN $2 THEN 'en_ligne' ELSE 'hors_ligne' END)
		WHERE id = $1`,
		string(id), disponible, at, explicit,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateLocation(ctx context.Context, u LocationUpdate) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE chauffeurs
		SET latitude = $2, longitude = $3, vitesse = $4, direction = $5, derniere_activite = $6
		WHERE id = $1`,
		string(u.ChauffeurID), u.Position.Lat, u.Position.Lng, u.Speed, u.Heading, u.RecordedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustLoad moves the active-delivery counter by delta (never below zero) and
// recomputes the stored statut.
func (s *Store) AdjustLoad(ctx context.Context, id types.ID, delta int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE chauffeurs
		SET active_deliveries = GREATEST(active_deliveries + $2, 0)
		WHERE id = $1`, string(id), delta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = s.db.Exec(ctx, `UPDATE chauffeurs SET statut = `+statutCase+` WHERE id = $1`, string(id))
	return err
}

// MarkStaleOffline forces drivers whose last heartbeat predates cutoff offline
// and returns their ids.
func (s *Store) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE chauffeurs
		SET disponible = FALSE, statut = 'hors_ligne'
		WHERE (derniere_activite IS NULL OR derniere_activite < $1)
		  AND (disponible OR statut <> 'hors_ligne')
		RETURNING id::text`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *Store) DeviceToken(ctx context.Context, id types.ID) (string, error) {
	var token string
	err := s.db.QueryRow(ctx, `SELECT fcm_token FROM chauffeurs WHERE id = $1`, string(id)).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return token, err
}
