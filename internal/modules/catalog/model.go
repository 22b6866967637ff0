// README: Catalog references; an order line points into exactly one of three catalogs.
package catalog

import "livraison/internal/types"

type Kind string

const (
	KindRegular        Kind = "regular"
	KindReadyCocktail  Kind = "ready_cocktail"
	KindCocktailMaison Kind = "cocktail_maison"
)

// Ref is the tagged variant Regular(id) | ReadyCocktail(id) | CocktailMaison(id).
// It is flattened into three nullable columns only at the persistence boundary.
type Ref struct {
	Kind Kind
	ID   types.ID
}

func Regular(id types.ID) Ref        { return Ref{Kind: KindRegular, ID: id} }
func ReadyCocktail(id types.ID) Ref  { return Ref{Kind: KindReadyCocktail, ID: id} }
func CocktailMaison(id types.ID) Ref { return Ref{Kind: KindCocktailMaison, ID: id} }

func (r Ref) Valid() bool {
	switch r.Kind {
	case KindRegular, KindReadyCocktail, KindCocktailMaison:
		return r.ID != ""
	}
	return false
}

// Columns returns (product_id, ready_cocktail_id, cocktail_maison_id); exactly one is non-nil.
func (r Ref) Columns() (productID, readyCocktailID, cocktailMaisonID *string) {
	id := string(r.ID)
	switch r.Kind {
	case KindRegular:
		productID = &id
	case KindReadyCocktail:
		readyCocktailID = &id
	case KindCocktailMaison:
		cocktailMaisonID = &id
	}
	return
}

// FromColumns rebuilds a Ref from the stored discriminator and the three nullable columns.
func FromColumns(kind string, productID, readyCocktailID, cocktailMaisonID *string) (Ref, bool) {
	var col *string
	switch Kind(kind) {
	case KindRegular:
		col = productID
	case KindReadyCocktail:
		col = readyCocktailID
	case KindCocktailMaison:
		col = cocktailMaisonID
	default:
		return Ref{}, false
	}
	if col == nil || *col == "" {
		return Ref{}, false
	}
	return Ref{Kind: Kind(kind), ID: types.ID(*col)}, true
}
