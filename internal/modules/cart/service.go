// README: Cart service: server side of the login merge and cart persistence.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrBadRequest = errors.New("bad request")

type Repository interface {
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, userID string, c Cart) error
}

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrBadRequest)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, userID string) (Cart, error) {
	if err := checkUser(userID); err != nil {
		return Cart{}, err
	}
	return s.store.Get(ctx, userID)
}

func (s *Service) Save(ctx context.Context, userID string, c Cart) (Cart, error) {
	if err := checkUser(userID); err != nil {
		return Cart{}, err
	}
	if err := c.Validate(); err != nil {
		return Cart{}, err
	}
	c = c.Normalize()
	if err := s.store.Save(ctx, userID, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// SyncCart merges the client's local cart with the stored one. A winning
// local cart is persisted before it is returned.
func (s *Service) SyncCart(ctx context.Context, userID string, local Cart) (Cart, error) {
	if err := checkUser(userID); err != nil {
		return Cart{}, err
	}
	if err := local.Validate(); err != nil {
		return Cart{}, err
	}
	remote, err := s.store.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	merged, push := Merge(local, remote)
	if push {
		if err := s.store.Save(ctx, userID, merged); err != nil {
			return Cart{}, err
		}
	}
	log.Debug().Str("component", "cart").Str("user_id", userID).Bool("local_won", push).
		Int("lines", len(merged.Items)).Msg("cart synced")
	return merged, nil
}
