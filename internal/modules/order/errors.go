package order

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidState      = errors.New("invalid state transition")
	ErrNotFound          = errors.New("order not found")
	ErrConflict          = errors.New("order state conflict")
	ErrBadRequest        = errors.New("bad request")
	ErrDriverUnavailable = errors.New("chauffeur is not available")
	ErrNoDriverAvailable = errors.New("no chauffeur available")
	ErrForbidden         = errors.New("order is not assigned to this chauffeur")
)

type InvalidItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InvalidItemsError names the line items that resolved in no catalog.
type InvalidItemsError struct {
	Items []InvalidItem
}

func (e *InvalidItemsError) Error() string {
	if len(e.Items) == 0 {
		return "order has no resolvable items"
	}
	names := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		names = append(names, fmt.Sprintf("%s (%s)", it.Name, it.ID))
	}
	return "unknown items: " + strings.Join(names, ", ")
}
