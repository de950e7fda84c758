package dfrn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/models/modeltest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestNotify(t *testing.T) {
	ctx := context.Background()
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	bob := modeltest.MockUser(t, env, "bob")
	mallory := modeltest.MockUser(t, env, "mallory")
	// alice knows bob, a user of this node, by his profile and key
	modeltest.MockContact(t, env.DB, alice.ID, "bob", "local.example", func(c *models.Contact) {
		c.PubKey = string(bob.PublicKey)
	})

	r := chi.NewRouter()
	r.Post("/dfrn_notify/{nick}", httpx.HandlerFunc(func(*http.Request) *models.Env { return env }, (&Inbox{}).Notify))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	notification := func(t *testing.T, from *models.Owner, body string) []byte {
		item := modeltest.MockItem(t, env.DB, from, body)
		f := NewFeed(from, item.CreatedAt)
		f.AddItems(item)
		b, err := f.Marshal()
		require.NoError(t, err)
		return (&Form{Data: string(b), Perm: "rw"}).Encode()
	}

	t.Run("imports a signed notification", func(t *testing.T) {
		require := require.New(t)
		body := notification(t, bob, "hello alice")
		require.NoError(Post(ctx, srv.Client(), bob, srv.URL+"/dfrn_notify/alice", body))

		var items []*models.Item
		require.NoError(env.DB.Where("uid = ? AND body = ?", alice.ID, "hello alice").Find(&items).Error)
		require.Len(items, 1)
		require.Equal(models.DFRN, items[0].Network)
	})

	t.Run("unknown sender", func(t *testing.T) {
		require := require.New(t)
		body := notification(t, mallory, "let me in")
		err := Post(ctx, srv.Client(), mallory, srv.URL+"/dfrn_notify/alice", body)
		var se *StatusError
		require.ErrorAs(err, &se)
		require.Equal(StatusUnknown, se.Status)
	})

	t.Run("forged signature", func(t *testing.T) {
		require := require.New(t)
		body := notification(t, bob, "forged")
		forger := &models.Owner{User: mallory.User, Self: bob.Self}
		err := Post(ctx, srv.Client(), forger, srv.URL+"/dfrn_notify/alice", body)
		var se *StatusError
		require.ErrorAs(err, &se)
		require.Equal(StatusRejected, se.Status)

		var n int64
		require.NoError(env.DB.Model(&models.Item{}).Where("uid = ? AND body = ?", alice.ID, "forged").Count(&n).Error)
		require.Zero(n)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		require := require.New(t)
		body := notification(t, bob, "anyone?")
		err := Post(ctx, srv.Client(), bob, srv.URL+"/dfrn_notify/nobody", body)
		var se *StatusError
		require.ErrorAs(err, &se)
		require.Equal(StatusUnknown, se.Status)
	})

	t.Run("wrong media type", func(t *testing.T) {
		require := require.New(t)
		resp, err := srv.Client().Post(srv.URL+"/dfrn_notify/alice", "application/json", strings.NewReader("{}"))
		require.NoError(err)
		defer resp.Body.Close()
		require.Equal(http.StatusUnsupportedMediaType, resp.StatusCode)
	})
}
