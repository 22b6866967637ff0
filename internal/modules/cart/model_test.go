package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rumID    = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	ginID    = "0d3c2b1a-9f8e-4d7c-8b6a-5f4e3d2c1b0a"
	mojitoID = "9b2f6f0e-3c1a-4e8b-9d6e-1f2a3b4c5d6e"
)

func TestParseProduct(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
		ok   bool
	}{
		{"numeric id", map[string]any{"id": 123, "name": "x", "price": 10.0}, false},
		{"float id", map[string]any{"id": 123.0, "name": "x", "price": 10.0}, false},
		{"valid", map[string]any{"id": rumID, "name": "Rum", "price": 9000.0}, true},
		{"base_price", map[string]any{"id": rumID, "name": "Rum", "base_price": 9000.0}, true},
		{"nil product", nil, false},
		{"missing id", map[string]any{"name": "Rum", "price": 9000.0}, false},
		{"empty name", map[string]any{"id": rumID, "name": "  ", "price": 9000.0}, false},
		{"string price", map[string]any{"id": rumID, "name": "Rum", "price": "9000"}, false},
		{"zero price", map[string]any{"id": rumID, "name": "Rum", "price": 0.0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseProduct(tc.raw)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidProduct)
			}
		})
	}
}

func TestAddRejectsInvalidAndLeavesCartUnchanged(t *testing.T) {
	c := New()
	_, err := ParseProduct(map[string]any{"id": 123, "name": "x", "price": 10})
	require.Error(t, err)
	assert.Error(t, c.Add(Product{ID: "123", Name: "x", Price: 10}, 1))
	assert.True(t, c.IsEmpty())

	p, err := ParseProduct(map[string]any{"id": rumID, "name": "Rum", "price": 9000.0})
	require.NoError(t, err)
	require.NoError(t, c.Add(p, 0))
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, "Rum", c.Items[0].Product.Name)
}

func TestQuantityRules(t *testing.T) {
	c := New()
	require.NoError(t, c.Add(Product{ID: rumID, Name: "Rum", Price: 9000}, 1))
	require.NoError(t, c.Add(Product{ID: rumID, Name: "Rum", Price: 9000}, 2))
	require.NoError(t, c.Add(Product{ID: ginID, Name: "Gin", Price: 7000}, 1))
	assert.Len(t, c.Items, 2)
	assert.Equal(t, 4, c.Count())
	assert.Equal(t, 34000.0, c.Subtotal())

	c.SetQuantity(rumID, 0)
	require.Len(t, c.Items, 1)
	assert.Equal(t, ginID, c.Items[0].Product.ID)

	c.SetQuantity(ginID, 5)
	assert.Equal(t, 5, c.Items[0].Quantity)
	c.Remove(ginID)
	assert.True(t, c.IsEmpty())
}

func cartOf(ids ...string) Cart {
	c := New()
	for _, id := range ids {
		_ = c.Add(Product{ID: id, Name: "p-" + id[:4], Price: 1000}, 1)
	}
	return c
}

func TestMerge(t *testing.T) {
	merged, push := Merge(cartOf(rumID), cartOf(mojitoID))
	assert.True(t, push)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, rumID, merged.Items[0].Product.ID)

	merged, push = Merge(cartOf(), cartOf(mojitoID))
	assert.False(t, push)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, mojitoID, merged.Items[0].Product.ID)

	merged, push = Merge(Cart{}, Cart{})
	assert.False(t, push)
	assert.True(t, merged.IsEmpty())
	assert.Equal(t, DefaultDeliveryOption, merged.DeliveryOption)
}

type memRepo struct {
	carts map[string]Cart
	saves int
	err   error
}

func (m *memRepo) Get(_ context.Context, userID string) (Cart, error) {
	if m.err != nil {
		return Cart{}, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return New(), nil
	}
	return c, nil
}

func (m *memRepo) Save(_ context.Context, userID string, c Cart) error {
	m.saves++
	m.carts[userID] = c
	return nil
}

func TestSyncCartLocalWins(t *testing.T) {
	repo := &memRepo{carts: map[string]Cart{"u1": cartOf(mojitoID)}}
	svc := NewService(repo)

	merged, err := svc.SyncCart(context.Background(), "u1", cartOf(rumID))
	require.NoError(t, err)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, rumID, merged.Items[0].Product.ID)
	assert.Equal(t, 1, repo.saves)
	assert.Equal(t, rumID, repo.carts["u1"].Items[0].Product.ID)
}

func TestSyncCartRemoteWinsWhenLocalEmpty(t *testing.T) {
	repo := &memRepo{carts: map[string]Cart{"u1": cartOf(mojitoID)}}
	svc := NewService(repo)

	merged, err := svc.SyncCart(context.Background(), "u1", New())
	require.NoError(t, err)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, mojitoID, merged.Items[0].Product.ID)
	assert.Zero(t, repo.saves)
}

func TestSyncCartNoRowIsEmpty(t *testing.T) {
	svc := NewService(&memRepo{carts: map[string]Cart{}})
	merged, err := svc.SyncCart(context.Background(), "new-user", New())
	require.NoError(t, err)
	assert.True(t, merged.IsEmpty())
	assert.Equal(t, DefaultDeliveryOption, merged.DeliveryOption)
}

func TestSyncCartErrors(t *testing.T) {
	svc := NewService(&memRepo{carts: map[string]Cart{}, err: errors.New("db down")})
	_, err := svc.SyncCart(context.Background(), "u1", New())
	assert.EqualError(t, err, "db down")

	_, err = svc.SyncCart(context.Background(), " ", New())
	assert.ErrorIs(t, err, ErrBadRequest)

	bad := Cart{Items: []Line{{Product: Product{ID: "nope", Name: "x", Price: 1}, Quantity: 1}}}
	_, err = NewService(&memRepo{carts: map[string]Cart{}}).Save(context.Background(), "u1", bad)
	assert.ErrorIs(t, err, ErrInvalidProduct)
}
