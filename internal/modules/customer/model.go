// README: Customer record, merged by e-mail on every checkout.
package customer

import (
	"strings"

	"livraison/internal/types"
)

type Customer struct {
	ID        types.ID
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

func (c Customer) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// NormalizeEmail is the merge key form: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
