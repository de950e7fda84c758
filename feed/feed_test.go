package feed

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/models/modeltest"
	"github.com/go-chi/chi/v5"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/require"
)

func TestShow(t *testing.T) {
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")

	first := modeltest.MockItem(t, env.DB, alice, "<p>first <b>post</b></p>")
	second := modeltest.MockItem(t, env.DB, alice, "second post")
	modeltest.MockItem(t, env.DB, alice, "a comment", modeltest.ReplyTo(first))
	modeltest.MockItem(t, env.DB, alice, "just for bob", func(i *models.Item) {
		i.AllowCID = "<" + bob.ID.String() + ">"
		i.Private = true
	})

	r := chi.NewRouter()
	r.Get("/feed/{nick}", httpx.HandlerFunc(func(*http.Request) *models.Env { return env }, Show))

	get := func(t *testing.T, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
		return rec
	}

	t.Run("public top level posts, newest first", func(t *testing.T) {
		require := require.New(t)
		rec := get(t, "/feed/alice")
		require.Equal(http.StatusOK, rec.Code)
		require.Contains(rec.Header().Get("Content-Type"), "application/atom+xml")

		f, err := gofeed.NewParser().ParseString(rec.Body.String())
		require.NoError(err)
		require.Equal("atom", f.FeedType)
		require.Equal(alice.Self.Name, f.Title)
		require.Len(f.Items, 2)
		require.Equal(second.URI, f.Items[0].GUID)
		require.Equal(first.URI, f.Items[1].GUID)
		require.Equal(first.Plink, f.Items[1].Link)
		require.Equal("first post", f.Items[1].Title)
	})

	t.Run("limit", func(t *testing.T) {
		require := require.New(t)
		rec := get(t, "/feed/alice?limit=1")
		require.Equal(http.StatusOK, rec.Code)
		f, err := gofeed.NewParser().ParseString(rec.Body.String())
		require.NoError(err)
		require.Len(f.Items, 1)
		require.Equal(second.URI, f.Items[0].GUID)
	})

	t.Run("unknown user", func(t *testing.T) {
		require := require.New(t)
		rec := get(t, "/feed/nobody")
		require.Equal(http.StatusNotFound, rec.Code)
	})
}

func TestExcerpt(t *testing.T) {
	require := require.New(t)
	require.Equal("short", excerpt("short", 10))
	require.Equal("abcd…", excerpt("abcdefgh", 5))
}
