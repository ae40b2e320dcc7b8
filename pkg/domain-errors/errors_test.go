package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("finds code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("context: %w", New(CodeExpired, "offer expired"))
		assert.True(t, HasCode(err, CodeExpired))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, CodeLedgerDown, "registry unreachable")

	require.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.Nil(t, Wrap(nil, CodeInternal, "unused"))
}

func TestErrorsIsMatchesCodeAndMessage(t *testing.T) {
	err := New(CodeInvalidToken, "token has expired")
	require.ErrorIs(t, err, New(CodeInvalidToken, "token has expired"))
	assert.NotErrorIs(t, err, New(CodeInvalidToken, "invalid token"))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidGrant:   http.StatusBadRequest,
		CodeAlreadyUsed:    http.StatusBadRequest,
		CodeInvalidToken:   http.StatusUnauthorized,
		CodeNotFound:       http.StatusNotFound,
		CodeConflict:       http.StatusConflict,
		CodeSigning:        http.StatusInternalServerError,
		CodeLedgerDown:     http.StatusInternalServerError,
		CodeLedgerRejected: http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
