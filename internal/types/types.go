// README: Shared identifiers and value objects used across modules.
package types

import (
	"math"

	"github.com/google/uuid"
)

type ID string

// IsUUID reports whether the id has the canonical 8-4-4-4-12 UUID shape.
func (id ID) IsUUID() bool {
	return IsUUID(string(id))
}

func IsUUID(v string) bool {
	if len(v) != 36 {
		return false
	}
	_, err := uuid.Parse(v)
	return err == nil
}

func NewID() ID {
	return ID(uuid.NewString())
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// MoneyTolerance is the float slack allowed when comparing computed totals.
const MoneyTolerance = 0.01

func AmountsEqual(a, b float64) bool {
	return math.Abs(a-b) <= MoneyTolerance
}
