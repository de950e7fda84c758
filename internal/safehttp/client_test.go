package safehttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	t.Run("blocks loopback", func(t *testing.T) {
		require := require.New(t)

		_, err := NewClient(time.Second, false).Get(srv.URL)
		require.Error(err)
	})
	t.Run("private networks allowed", func(t *testing.T) {
		require := require.New(t)

		resp, err := NewClient(time.Second, true).Get(srv.URL)
		require.NoError(err)
		defer resp.Body.Close()
		require.Equal(http.StatusNoContent, resp.StatusCode)
	})
}
