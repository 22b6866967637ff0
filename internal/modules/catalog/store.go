// README: Catalog store probing the three catalogs in priority order.
package catalog

import (
	"context"
	"errors"
	"fmt"

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

type probe struct {
	kind  Kind
	query string
}

// Ids are compared as text so a malformed client id is a miss rather than a cast error.
var probes = []probe{
	{KindRegular, `SELECT id::text FROM v_products WHERE id::text = $1`},
	{KindReadyCocktail, `SELECT id::text FROM ready_cocktails WHERE id::text = $1 AND is_active`},
	{KindCocktailMaison, `SELECT id::text FROM cocktails_maison WHERE id::text = $1 AND is_active`},
}

// Resolve returns the first catalog holding id. ok is false when no catalog matches.
func (s *Store) Resolve(ctx context.Context, id types.ID) (Ref, bool, error) {
	for _, p := range probes {
		var found string
		err := s.db.QueryRow(ctx, p.query, string(id)).Scan(&found)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return Ref{}, false, fmt.Errorf("probe %s catalog: %w", p.kind, err)
		}
		return Ref{Kind: p.kind, ID: types.ID(found)}, true, nil
	}
	return Ref{}, false, nil
}
