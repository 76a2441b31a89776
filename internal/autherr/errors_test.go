package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Locked(7)
	assert.True(t, errors.Is(err, ErrAccountLocked))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
	assert.Equal(t, "Account is locked. Please try again in 7 minutes.", err.Error())

	wrapped := fmt.Errorf("login: %w", LockTripped(15))
	assert.True(t, errors.Is(wrapped, ErrAccountLocked))
	assert.Equal(t, CodeAccountLocked, CodeOf(wrapped))
}

func TestCodeOfUntyped(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInvalidMFAToken, CodeOf(ErrInvalidMFAToken))
}

func TestExtensions(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"code": "UNAUTHENTICATED"}, ErrAuthenticationRequired.Extensions())
}
