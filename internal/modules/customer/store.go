// README: Customer store; upsert by e-mail with last-write-wins contact fields.
package customer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"livraison/internal/infra"
	"livraison/internal/types"
)

var ErrNotFound = errors.New("customer not found")

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

// Upsert inserts the customer or overwrites the contact fields of the row with
// the same e-mail, returning the persisted id.
func (s *Store) Upsert(ctx context.Context, c Customer) (types.ID, error) {
	if c.ID == "" {
		c.ID = types.NewID()
	}
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO customers (id, email, first_name, last_name, phone, full_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			phone      = EXCLUDED.phone,
			full_name  = EXCLUDED.full_name,
			updated_at = NOW()
		RETURNING id::text`,
		string(c.ID), NormalizeEmail(c.Email), c.FirstName, c.LastName, c.Phone, c.FullName(),
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return types.ID(id), nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Customer, error) {
	var c Customer
	err := s.db.QueryRow(ctx, `
		SELECT id::text, email, first_name, last_name, phone
		FROM customers WHERE id = $1`, string(id),
	).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
