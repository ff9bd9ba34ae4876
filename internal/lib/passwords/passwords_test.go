package passwords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse battery staple", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, Verify("correct horse battery staple", hash))
	assert.False(t, Verify("correct horse battery stapl", hash))
	assert.False(t, Verify("", hash))
}

func TestHash_Salted(t *testing.T) {
	a, err := Hash("password123", bcrypt.MinCost)
	require.NoError(t, err)

	b, err := Hash("password123", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, Verify("password123", a))
	assert.True(t, Verify("password123", b))
}

func TestHash_DefaultCost(t *testing.T) {
	hash, err := Hash("password123", 0)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, DefaultCost, cost)
}

func TestVerify_MalformedHash(t *testing.T) {
	assert.False(t, Verify("password123", ""))
	assert.False(t, Verify("password123", "not-a-bcrypt-hash"))
}
