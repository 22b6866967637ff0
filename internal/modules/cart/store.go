// README: Server-side cart store (user_carts), keyed by user id.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"livraison/internal/infra"
)

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

// Get returns the stored cart; a user without a row has an empty cart.
func (s *Store) Get(ctx context.Context, userID string) (Cart, error) {
	var raw []byte
	var c Cart
	err := s.db.QueryRow(ctx, `
		SELECT items, promo_code, promo_discount::float8, delivery_option
		FROM user_carts WHERE user_id = $1`, userID,
	).Scan(&raw, &c.PromoCode, &c.PromoDiscount, &c.DeliveryOption)
	if errors.Is(err, pgx.ErrNoRows) {
		return New(), nil
	}
	if err != nil {
		return Cart{}, err
	}
	if err := json.Unmarshal(raw, &c.Items); err != nil {
		return Cart{}, fmt.Errorf("decode cart items: %w", err)
	}
	return c.Normalize(), nil
}

func (s *Store) Save(ctx context.Context, userID string, c Cart) error {
	c = c.Normalize()
	items, err := json.Marshal(c.Items)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO user_carts (user_id, items, promo_code, promo_discount, delivery_option)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			items           = EXCLUDED.items,
			promo_code      = EXCLUDED.promo_code,
			promo_discount  = EXCLUDED.promo_discount,
			delivery_option = EXCLUDED.delivery_option,
			updated_at      = NOW()`,
		userID, items, c.PromoCode, c.PromoDiscount, c.DeliveryOption,
	)
	return err
}
