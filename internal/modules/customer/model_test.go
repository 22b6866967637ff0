package customer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullName(t *testing.T) {
	assert.Equal(t, "Awa Kone", Customer{FirstName: " Awa ", LastName: "Kone"}.FullName())
	assert.Equal(t, "Awa", Customer{FirstName: "Awa"}.FullName())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "awa@example.ci", NormalizeEmail("  Awa@Example.CI "))
}
