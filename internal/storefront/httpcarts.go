// README: HTTP client for the server cart endpoints.
package storefront

import (
	"context"
	"net/http"
	"net/url"

	"livraison/internal/apiclient"
	"livraison/internal/modules/cart"
)

type HTTPCarts struct {
	client *apiclient.Client
}

func NewHTTPCarts(baseURL string, token func() string) *HTTPCarts {
	return &HTTPCarts{client: apiclient.New(baseURL, token)}
}

func (h *HTTPCarts) Sync(ctx context.Context, userID string, local cart.Cart) (cart.Cart, error) {
	var merged cart.Cart
	err := h.client.Do(ctx, http.MethodPost, "/carts/"+url.PathEscape(userID)+"/sync", local, &merged)
	return merged, err
}

func (h *HTTPCarts) Save(ctx context.Context, userID string, c cart.Cart) error {
	return h.client.Do(ctx, http.MethodPut, "/carts/"+url.PathEscape(userID), c, nil)
}
