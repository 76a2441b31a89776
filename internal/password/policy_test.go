package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidateAcceptsStrongPassword(t *testing.T) {
	res := Validate("Test123!@#")
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateSingleRule(t *testing.T) {
	cases := []struct {
		name string
		pw   string
		want string
	}{
		{"too short", "Te1!a", MsgTooShort},
		{"no uppercase", "test123!@#", MsgNoUppercase},
		{"no lowercase", "TEST123!@#", MsgNoLowercase},
		{"no number", "TestTest!@#", MsgNoNumber},
		{"no special", "Test123Test", MsgNoSpecial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Validate(tc.pw)
			assert.False(t, res.Valid)
			assert.Equal(t, []string{tc.want}, res.Errors)
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	res := Validate("")
	assert.False(t, res.Valid)
	assert.ElementsMatch(t, []string{MsgTooShort, MsgNoUppercase, MsgNoLowercase, MsgNoNumber, MsgNoSpecial}, res.Errors)

	res = Validate("test")
	assert.Equal(t, []string{MsgTooShort, MsgNoUppercase, MsgNoNumber, MsgNoSpecial}, res.Errors)
}

func TestValidateCountsRunes(t *testing.T) {
	// seven runes, more than eight bytes
	res := Validate("Aa1!ééé")
	assert.Equal(t, []string{MsgTooShort}, res.Errors)
}

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("Aa1!aaaa")
	require.NoError(t, err)
	assert.NotEqual(t, "Aa1!aaaa", hash)

	ok, err := h.Verify(hash, "Aa1!aaaa")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(hash, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("not-a-hash", "Aa1!aaaa")
	assert.Error(t, err)
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}
