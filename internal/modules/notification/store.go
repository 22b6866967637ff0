// README: Notification store backed by PostgreSQL.
package notification

import (
	"context"
	"errors"

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
	SELECT id::text, chauffeur_id::text, message, titre, type, read,
	       order_id::text, order_number, delivery_address, customer_name,
	       total_amount::float8, created_at
	FROM notifications`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var typ string
	var orderID *string
	err := row.Scan(
		&n.ID, &n.ChauffeurID, &n.Message, &n.Titre, &typ, &n.Read,
		&orderID, &n.OrderNumber, &n.DeliveryAddress, &n.CustomerName,
		&n.TotalAmount, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n.Type = Type(typ)
	if orderID != nil {
		id := types.ID(*orderID)
		n.OrderID = &id
	}
	return &n, nil
}

func (s *Store) Insert(ctx context.Context, n *Notification) error {
	var orderID *string
	if n.OrderID != nil {
		v := string(*n.OrderID)
		orderID = &v
	}
	return s.db.QueryRow(ctx, `
		INSERT INTO notifications (
			id, chauffeur_id, message, titre, type, read,
			order_id, order_number, delivery_address, customer_name, total_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		n.ID, n.ChauffeurID, n.Message, n.Titre, string(n.Type), n.Read,
		orderID, n.OrderNumber, n.DeliveryAddress, n.CustomerName, n.TotalAmount,
	).Scan(&n.CreatedAt)
}

// ListForChauffeur returns unread notifications first, newest first within each group.
func (s *Store) ListForChauffeur(ctx context.Context, chauffeurID types.ID, unreadOnly bool) ([]Notification, error) {
	rows, err := s.db.Query(ctx, selectColumns+`
		WHERE chauffeur_id = $1 AND (NOT $2 OR read = FALSE)
		ORDER BY read ASC, created_at DESC
		LIMIT 100`, chauffeurID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Notification, error) {
	return scanNotification(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
}

// GetForUpdate locks the row for the rest of the enclosing transaction.
func (s *Store) GetForUpdate(ctx context.Context, id types.ID) (*Notification, error) {
	return scanNotification(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, id))
}

func (s *Store) SetRead(ctx context.Context, id types.ID, read bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read = $2 WHERE id = $1`, id, read)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReadFor only touches the row when it belongs to chauffeurID.
func (s *Store) SetReadFor(ctx context.Context, id, chauffeurID types.ID, read bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read = $2 WHERE id = $1 AND chauffeur_id = $3`, id, read, chauffeurID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RetireOffers marks every unread new-order offer for orderID read.
func (s *Store) RetireOffers(ctx context.Context, orderID types.ID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE order_id = $1 AND type = $2 AND read = FALSE`,
		orderID, string(TypeNouvelleCommande))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
