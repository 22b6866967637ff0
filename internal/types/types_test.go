package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUUID(t *testing.T) {
	assert.True(t, IsUUID("f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.False(t, IsUUID("not-a-uuid"))
	assert.False(t, IsUUID(""))
	// uuid.Parse accepts the urn and braced forms; the canonical shape does not.
	assert.False(t, IsUUID("urn:uuid:f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.False(t, IsUUID("{f47ac10b-58cc-4372-a567-0e02b2c3d479}"))
	assert.True(t, NewID().IsUUID())
}

func TestAmountsEqual(t *testing.T) {
	assert.True(t, AmountsEqual(10.004, 10))
	assert.False(t, AmountsEqual(10.5, 10))
}

func TestPointIsZero(t *testing.T) {
	assert.True(t, Point{}.IsZero())
	assert.False(t, Point{Lat: 5.3}.IsZero())
}
