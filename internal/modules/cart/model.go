// README: Cart model: validated product snapshots, quantity rules and the login merge rule.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"livraison/internal/types"
)

const DefaultDeliveryOption = "standard"

var ErrInvalidProduct = errors.New("invalid product")

// Product is the snapshot stored in a cart line.
type Product struct {
	ID       string  `json:"id" validate:"required,uuid_shape"`
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gt=0"`
	ImageURL string  `json:"image_url,omitempty"`
	Category string  `json:"category,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("uuid_shape", func(fl validator.FieldLevel) bool {
		return types.IsUUID(fl.Field().String())
	})
	return v
}

func (p Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", ErrInvalidProduct, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	return nil
}

// ParseProduct accepts a loosely typed product as clients send it. The id is
// coerced to a string and must have UUID shape; the price may come as price or
// base_price and must be a number.
func ParseProduct(raw map[string]any) (Product, error) {
	if raw == nil {
		return Product{}, fmt.Errorf("%w: product is missing", ErrInvalidProduct)
	}
	id, ok := coerceID(raw["id"])
	if !ok {
		return Product{}, fmt.Errorf("%w: id is missing", ErrInvalidProduct)
	}
	name, _ := raw["name"].(string)

	price, ok := number(raw["price"])
	if !ok {
		price, ok = number(raw["base_price"])
	}
	if !ok {
		return Product{}, fmt.Errorf("%w: price must be a number", ErrInvalidProduct)
	}

	p := Product{ID: id, Name: strings.TrimSpace(name), Price: price}
	p.ImageURL, _ = raw["image_url"].(string)
	p.Category, _ = raw["category"].(string)
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

func coerceID(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(id), true
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	}
	return fmt.Sprint(v), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

type Line struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

type Cart struct {
	Items          []Line  `json:"items"`
	PromoCode      string  `json:"promo_code"`
	PromoDiscount  float64 `json:"promo_discount"`
	DeliveryOption string  `json:"delivery_option"`
}

func New() Cart {
	return Cart{Items: []Line{}, DeliveryOption: DefaultDeliveryOption}
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Count is the number of units across all lines.
func (c Cart) Count() int {
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

func (c Cart) Subtotal() float64 {
	var total float64
	for _, l := range c.Items {
		total += l.Product.Price * float64(l.Quantity)
	}
	return total
}

// Add validates p and adds qty units, merging into an existing line.
func (c *Cart) Add(p Product, qty int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if qty < 1 {
		qty = 1
	}
	for i := range c.Items {
		if c.Items[i].Product.ID == p.ID {
			c.Items[i].Quantity += qty
			return nil
		}
	}
	c.Items = append(c.Items, Line{Product: p, Quantity: qty})
	return nil
}

// SetQuantity sets a line's quantity; zero or less removes the line.
func (c *Cart) SetQuantity(productID string, qty int) {
	if qty < 1 {
		c.Remove(productID)
		return
	}
	for i := range c.Items {
		if c.Items[i].Product.ID == productID {
			c.Items[i].Quantity = qty
			return
		}
	}
}

func (c *Cart) Remove(productID string) {
	out := c.Items[:0]
	for _, l := range c.Items {
		if l.Product.ID != productID {
			out = append(out, l)
		}
	}
	c.Items = out
}

// Validate checks every line the way Add would.
func (c Cart) Validate() error {
	for i, l := range c.Items {
		if err := l.Product.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("items[%d]: %w: quantity must be at least 1", i, ErrInvalidProduct)
		}
	}
	return nil
}

// Normalize fills defaults on a cart read from storage.
func (c Cart) Normalize() Cart {
	if c.Items == nil {
		c.Items = []Line{}
	}
	if c.DeliveryOption == "" {
		c.DeliveryOption = DefaultDeliveryOption
	}
	return c
}

// Merge applies the login rule at cart level: a non-empty local cart wins and
// must be pushed to the server, otherwise a non-empty remote cart wins,
// otherwise the result is empty. Lines are never combined across carts.
func Merge(local, remote Cart) (merged Cart, pushLocal bool) {
	if !local.IsEmpty() {
		return local.Normalize(), true
	}
	if !remote.IsEmpty() {
		return remote.Normalize(), false
	}
	return New(), false
}
