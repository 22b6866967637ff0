// README: Client cart: hydrated from local storage, persisted on every mutation, merged with the server cart on sign-in.
package storefront

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"livraison/internal/modules/cart"
)

const CartKey = "livraison-cart"

// RemoteCarts is the server side of the cart.
type RemoteCarts interface {
	Sync(ctx context.Context, userID string, local cart.Cart) (cart.Cart, error)
	Save(ctx context.Context, userID string, c cart.Cart) error
}

type CartBox struct {
	storage Storage
	remote  RemoteCarts
	notify  func(msg string)

	mu     sync.Mutex
	cart   cart.Cart
	userID string
}

type CartOption func(*CartBox)

// WithRemote enables server-side persistence for signed-in users.
func WithRemote(r RemoteCarts) CartOption {
	return func(b *CartBox) { b.remote = r }
}

// WithNotifier sets the user-visible error callback.
func WithNotifier(fn func(msg string)) CartOption {
	return func(b *CartBox) { b.notify = fn }
}

// NewCartBox hydrates the cart from storage. Unreadable data and lines that
// fail validation are dropped.
func NewCartBox(ctx context.Context, storage Storage, opts ...CartOption) *CartBox {
	b := &CartBox{storage: storage, cart: cart.New(), notify: func(string) {}}
	for _, opt := range opts {
		opt(b)
	}

	raw, ok, err := storage.Get(ctx, CartKey)
	if err != nil || !ok {
		return b
	}
	var stored cart.Cart
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.Warn().Err(err).Str("component", "cart").Msg("discarding unreadable stored cart")
		return b
	}
	hydrated := cart.New()
	hydrated.PromoCode, hydrated.PromoDiscount = stored.PromoCode, stored.PromoDiscount
	if stored.DeliveryOption != "" {
		hydrated.DeliveryOption = stored.DeliveryOption
	}
	for _, l := range stored.Items {
		if err := hydrated.Add(l.Product, l.Quantity); err != nil {
			log.Warn().Err(err).Str("component", "cart").Msg("dropping invalid stored line")
		}
	}
	b.cart = hydrated
	return b
}

// Cart returns a copy of the current cart.
func (b *CartBox) Cart() cart.Cart {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyCart(b.cart)
}

func copyCart(c cart.Cart) cart.Cart {
	c.Items = append([]cart.Line{}, c.Items...)
	return c
}

// Add validates a loosely typed product and adds it. A rejected product is
// reported through the notifier and leaves the cart unchanged.
func (b *CartBox) Add(ctx context.Context, raw map[string]any, qty int) error {
	p, err := cart.ParseProduct(raw)
	if err != nil {
		b.notify("Ce produit ne peut pas être ajouté au panier.")
		log.Warn().Err(err).Str("component", "cart").Msg("rejected product")
		return err
	}
	return b.mutate(ctx, func(c *cart.Cart) error { return c.Add(p, qty) })
}

func (b *CartBox) SetQuantity(ctx context.Context, productID string, qty int) error {
	return b.mutate(ctx, func(c *cart.Cart) error {
		c.SetQuantity(productID, qty)
		return nil
	})
}

func (b *CartBox) Remove(ctx context.Context, productID string) error {
	return b.mutate(ctx, func(c *cart.Cart) error {
		c.Remove(productID)
		return nil
	})
}

func (b *CartBox) SetPromo(ctx context.Context, code string, discount float64) error {
	return b.mutate(ctx, func(c *cart.Cart) error {
		c.PromoCode, c.PromoDiscount = code, discount
		return nil
	})
}

func (b *CartBox) SetDeliveryOption(ctx context.Context, option string) error {
	return b.mutate(ctx, func(c *cart.Cart) error {
		c.DeliveryOption = option
		return nil
	})
}

func (b *CartBox) Clear(ctx context.Context) error {
	return b.mutate(ctx, func(c *cart.Cart) error {
		*c = cart.New()
		return nil
	})
}

// mutate applies fn to a copy and only keeps it when fn succeeds.
func (b *CartBox) mutate(ctx context.Context, fn func(*cart.Cart) error) error {
	b.mu.Lock()
	next := copyCart(b.cart)
	if err := fn(&next); err != nil {
		b.mu.Unlock()
		b.notify("Le panier n'a pas pu être mis à jour.")
		return err
	}
	b.cart = next
	userID := b.userID
	b.mu.Unlock()

	b.persist(ctx, next, userID)
	return nil
}

func (b *CartBox) persist(ctx context.Context, c cart.Cart, userID string) {
	raw, err := json.Marshal(c)
	if err == nil {
		err = b.storage.Set(ctx, CartKey, string(raw))
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "cart").Msg("local cart write failed")
	}
	if userID != "" && b.remote != nil {
		if err := b.remote.Save(ctx, userID, c); err != nil {
			log.Warn().Err(err).Str("component", "cart").Str("user_id", userID).Msg("remote cart write failed")
		}
	}
}

// OnAuthChange merges with the server cart when a user signs in. Sign-out
// keeps the local cart and stops remote writes.
func (b *CartBox) OnAuthChange(ctx context.Context, sess *Session) {
	if sess == nil {
		b.mu.Lock()
		b.userID = ""
		b.mu.Unlock()
		return
	}

	local := b.Cart()
	b.mu.Lock()
	b.userID = sess.UserID
	b.mu.Unlock()
	if b.remote == nil {
		return
	}

	merged, err := b.remote.Sync(ctx, sess.UserID, local)
	if err != nil {
		log.Warn().Err(err).Str("component", "cart").Str("user_id", sess.UserID).Msg("cart sync failed; keeping local cart")
		return
	}
	merged = copyCart(merged.Normalize())
	b.mu.Lock()
	b.cart = merged
	b.mu.Unlock()

	raw, err := json.Marshal(merged)
	if err == nil {
		err = b.storage.Set(ctx, CartKey, string(raw))
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "cart").Msg("local cart write failed")
	}
}

// Bind keeps the cart in step with the session syncer.
func (b *CartBox) Bind(ctx context.Context, s *SessionSyncer) {
	s.OnChange(func(sess *Session) { b.OnAuthChange(ctx, sess) })
}
