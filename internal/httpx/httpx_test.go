package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type env struct{}

type query struct {
	Limit int    `schema:"limit"`
	Nick  string `schema:"nick"`
}

func TestParams(t *testing.T) {
	t.Run("query string", func(t *testing.T) {
		require := require.New(t)
		r := httptest.NewRequest("GET", "/feed/alice?limit=5&other=x", nil)
		var q query
		require.NoError(Params(r, &q))
		require.Equal(5, q.Limit)
	})
	t.Run("urlencoded body", func(t *testing.T) {
		require := require.New(t)
		r := httptest.NewRequest("POST", "/", strings.NewReader("nick=bob&limit=2"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
		var q query
		require.NoError(Params(r, &q))
		require.Equal(query{Limit: 2, Nick: "bob"}, q)
	})
	t.Run("unsupported media type", func(t *testing.T) {
		require := require.New(t)
		r := httptest.NewRequest("POST", "/", strings.NewReader("{}"))
		r.Header.Set("Content-Type", "application/json")
		var se *StatusError
		require.ErrorAs(Params(r, &query{}), &se)
		require.Equal(http.StatusUnsupportedMediaType, se.Status())
	})
	t.Run("bad value", func(t *testing.T) {
		require := require.New(t)
		r := httptest.NewRequest("GET", "/?limit=many", nil)
		var se *StatusError
		require.ErrorAs(Params(r, &query{}), &se)
		require.Equal(http.StatusBadRequest, se.Status())
	})
}

func TestMediaType(t *testing.T) {
	require := require.New(t)
	r := httptest.NewRequest("POST", "/", nil)
	require.Equal("application/octet-stream", MediaType(r))
	r.Header.Set("Content-Type", "Application/X-WWW-Form-Urlencoded; charset=utf-8")
	require.Equal("application/x-www-form-urlencoded", MediaType(r))
}

func TestHandlerFunc(t *testing.T) {
	envFn := func(*http.Request) *env { return &env{} }
	t.Run("status error", func(t *testing.T) {
		require := require.New(t)
		h := HandlerFunc(envFn, func(*env, http.ResponseWriter, *http.Request) error {
			return Error(http.StatusNotFound, errors.New("no such user: carol"))
		})
		rw := httptest.NewRecorder()
		h(rw, httptest.NewRequest("GET", "/feed/carol", nil))
		require.Equal(http.StatusNotFound, rw.Code)
		require.Contains(rw.Body.String(), "no such user: carol")
	})
	t.Run("internal error is not leaked", func(t *testing.T) {
		require := require.New(t)
		h := HandlerFunc(envFn, func(*env, http.ResponseWriter, *http.Request) error {
			return errors.New("dial tcp 10.0.0.1:3306: refused")
		})
		rw := httptest.NewRecorder()
		h(rw, httptest.NewRequest("GET", "/", nil))
		require.Equal(http.StatusInternalServerError, rw.Code)
		require.NotContains(rw.Body.String(), "10.0.0.1")
	})
}
