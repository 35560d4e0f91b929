package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_HashAndVerify(t *testing.T) {
	h := &Bcrypt{Cost: bcrypt.MinCost}

	hash, err := h.Hash("open sesame")
	require.NoError(t, err)
	assert.NotEqual(t, "open sesame", hash)

	assert.True(t, h.Verify("open sesame", hash))
	assert.False(t, h.Verify("wrong", hash))
	assert.False(t, h.Verify("open sesame", "not-a-hash"))
}

func TestBcrypt_DefaultCost(t *testing.T) {
	h := NewBcrypt()
	assert.Equal(t, bcrypt.DefaultCost, h.Cost)
}
