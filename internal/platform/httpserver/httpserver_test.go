package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWriteTimeout(t *testing.T) {
	h := http.NewServeMux()

	t.Run("defaults when no option is given", func(t *testing.T) {
		srv := New(":0", h)
		assert.Equal(t, defaultWriteTimeout, srv.WriteTimeout)
	})

	t.Run("follows the configured deadline", func(t *testing.T) {
		srv := New(":0", h, WithWriteTimeout(3*time.Minute))
		assert.Equal(t, 3*time.Minute, srv.WriteTimeout)
		assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	})

	t.Run("non-positive deadline keeps the default", func(t *testing.T) {
		srv := New(":0", h, WithWriteTimeout(0))
		assert.Equal(t, defaultWriteTimeout, srv.WriteTimeout)
	})
}
