package dfrn

import (
	"context"
	"crypto"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	icrypto "github.com/fedinode/fedinode/internal/crypto"
	"github.com/fedinode/fedinode/internal/httpsig"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/models/modeltest"
	"github.com/stretchr/testify/require"
)

func TestFeed(t *testing.T) {
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")

	t.Run("entries round trip", func(t *testing.T) {
		require := require.New(t)
		root := modeltest.MockItem(t, env.DB, alice, "hello <b>world</b>", func(i *models.Item) {
			i.Mentions = []string{bob.URL}
		})
		reply := modeltest.MockItem(t, env.DB, alice, "a reply", modeltest.ReplyTo(root))
		gone := modeltest.MockItem(t, env.DB, alice, "gone", func(i *models.Item) {
			i.Deleted = true
		})

		f := NewFeed(alice, root.CreatedAt)
		f.AddItems(root, reply, gone)
		b, err := f.Marshal()
		require.NoError(err)

		parsed, err := Parse(b)
		require.NoError(err)
		require.Equal(alice.Self.URL, parsed.Owner.URI)
		require.Equal(alice.Self.Addr, parsed.Owner.Handle)
		require.Len(parsed.Entries, 2)
		require.Equal(root.URI, parsed.Entries[0].ID)
		require.Equal("hello <b>world</b>", parsed.Entries[0].Content.Value)
		require.Equal([]string{bob.URL}, parsed.Entries[0].Mentions())
		require.Nil(parsed.Entries[0].InReplyTo)
		require.Equal(root.URI, parsed.Entries[1].InReplyTo.Ref)
		require.Len(parsed.Deleted, 1)
		require.Equal(gone.URI, parsed.Deleted[0].Ref)
	})

	t.Run("mail", func(t *testing.T) {
		require := require.New(t)
		mail := &models.PrivateMail{UID: alice.ID, ContactID: bob.ID, URI: "urn:X-dfrn:local.example:1:m1", Title: "hi", Body: "private"}
		require.NoError(env.DB.Create(mail).Error)

		b, err := NewMailFeed(alice, mail).Marshal()
		require.NoError(err)
		parsed, err := Parse(b)
		require.NoError(err)
		require.NotNil(parsed.Mail)
		require.Equal("hi", parsed.Mail.Subject)
		require.Equal(mail.URI, parsed.Mail.InReplyTo)
		require.Empty(parsed.Entries)
	})

	t.Run("relocate", func(t *testing.T) {
		require := require.New(t)
		b, err := NewRelocateFeed(alice, "").Marshal()
		require.NoError(err)
		parsed, err := Parse(b)
		require.NoError(err)
		require.Equal(alice.Self.Notify, parsed.Relocate.Notify)
	})
}

func TestPost(t *testing.T) {
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	pub, err := icrypto.ParseRSAPublicKey(alice.PublicKey)
	require.NoError(t, err)

	serve := func(t *testing.T, status int) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			err = httpsig.Verify(r, body, func(keyID string) (crypto.PublicKey, error) {
				require.Equal(t, alice.KeyID(), keyID)
				return pub, nil
			})
			require.NoError(t, err)
			values, err := url.ParseQuery(string(body))
			require.NoError(t, err)
			require.Equal(t, "<feed/>", values.Get("data"))
			require.Equal(t, "rw", values.Get("perm"))
			require.NoError(t, WriteResult(w, status, "done"))
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	form := &Form{Data: "<feed/>", Perm: "rw"}

	t.Run("accepted", func(t *testing.T) {
		srv := serve(t, 0)
		require.NoError(t, Post(context.Background(), srv.Client(), alice, srv.URL+"/dfrn_notify/bob", form.Encode()))
	})

	t.Run("rejected", func(t *testing.T) {
		srv := serve(t, 1)
		err := Post(context.Background(), srv.Client(), alice, srv.URL+"/dfrn_notify/bob", form.Encode())
		var se *StatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, 1, se.Status)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := serve(t, 0)
		srv.Close()
		require.Error(t, Post(context.Background(), srv.Client(), alice, srv.URL+"/dfrn_notify/bob", form.Encode()))
	})
}

func TestImporter(t *testing.T) {
	newEnv := func(t *testing.T) (*models.Env, *models.Owner, *models.Owner, *models.Contact) {
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		bob := modeltest.MockUser(t, env, "bob")
		// bob as seen by alice
		contact := modeltest.MockContact(t, env.DB, alice.ID, "bob", "local.example")
		return env, alice, bob, contact
	}

	encode := func(t *testing.T, f *Feed) *Form {
		b, err := f.Marshal()
		require.NoError(t, err)
		return &Form{Data: string(b), Perm: "r"}
	}

	t.Run("entries are stored once", func(t *testing.T) {
		require := require.New(t)
		env, alice, bob, contact := newEnv(t)
		post := modeltest.MockItem(t, env.DB, bob, "from bob")
		f := NewFeed(bob, post.CreatedAt)
		f.AddItems(post)

		im := NewImporter(env)
		n, err := im.Import(context.Background(), alice, contact, encode(t, f))
		require.NoError(err)
		require.Equal(1, n)

		n, err = im.Import(context.Background(), alice, contact, encode(t, f))
		require.NoError(err)
		require.Zero(n)

		got, err := models.NewItems(env.DB).FindByURI(alice.ID, post.URI)
		require.NoError(err)
		require.Equal(contact.ID, got.ContactID)
		require.Equal("from bob", got.Body)
		require.False(got.Origin)
		require.True(got.IsTopLevel())
	})

	t.Run("followers may not start threads", func(t *testing.T) {
		require := require.New(t)
		env, alice, bob, contact := newEnv(t)
		contact.Rel = models.Follower
		require.NoError(env.DB.Save(contact).Error)
		post := modeltest.MockItem(t, env.DB, bob, "from bob")
		f := NewFeed(bob, post.CreatedAt)
		f.AddItems(post)

		n, err := NewImporter(env).Import(context.Background(), alice, contact, encode(t, f))
		require.NoError(err)
		require.Zero(n)
	})

	t.Run("tombstones delete the sender's items", func(t *testing.T) {
		require := require.New(t)
		env, alice, bob, contact := newEnv(t)
		post := modeltest.MockItem(t, env.DB, bob, "from bob")
		f := NewFeed(bob, post.CreatedAt)
		f.AddItems(post)
		im := NewImporter(env)
		_, err := im.Import(context.Background(), alice, contact, encode(t, f))
		require.NoError(err)

		post.Deleted = true
		f = NewFeed(bob, post.CreatedAt)
		f.AddItems(post)
		_, err = im.Import(context.Background(), alice, contact, encode(t, f))
		require.NoError(err)

		got, err := models.NewItems(env.DB).FindByURI(alice.ID, post.URI)
		require.NoError(err)
		require.True(got.Deleted)
	})

	t.Run("inbound contact revives the sender", func(t *testing.T) {
		require := require.New(t)
		env, alice, bob, contact := newEnv(t)
		contact.Archived = true
		require.NoError(env.DB.Save(contact).Error)

		_, err := NewImporter(env).Import(context.Background(), alice, contact, encode(t, NewFeed(bob, contact.CreatedAt)))
		require.NoError(err)
		got, err := models.NewContacts(env.DB).FindByID(contact.ID)
		require.NoError(err)
		require.Equal(models.Alive, got.Liveness())
	})

	t.Run("dissolve removes the contact", func(t *testing.T) {
		require := require.New(t)
		env, alice, _, contact := newEnv(t)
		_, err := NewImporter(env).Import(context.Background(), alice, contact, DissolveForm())
		require.NoError(err)
		_, err = models.NewContacts(env.DB).FindByID(contact.ID)
		require.True(models.IsNotFound(err))
	})
}

type relays []snowflake.ID

func (r *relays) Notify(_ context.Context, cmd models.Command, id snowflake.ID) error {
	if cmd != models.CommentImport {
		return nil
	}
	*r = append(*r, id)
	return nil
}

func TestImporterRelay(t *testing.T) {
	comment := func(bob *models.Owner, contact *models.Contact, parent *models.Item) *Form {
		reply := &models.Item{
			ID:         snowflake.Now(),
			URI:        "urn:X-dfrn:local.example:bob:reply",
			AuthorLink: contact.URL,
			AuthorName: contact.Name,
			Body:       "nice one",
			Verb:       models.VerbPost,
			ObjectType: models.ObjectComment,
			ThrParent:  parent.URI,
			CreatedAt:  time.Now(),
		}
		f := NewFeed(bob, reply.CreatedAt)
		f.AddItems(reply)
		b, err := f.Marshal()
		require.NoError(t, err)
		return &Form{Data: string(b), Perm: "r"}
	}

	t.Run("replies to our wall threads are relayed", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		bob := modeltest.MockUser(t, env, "bob")
		contact := modeltest.MockContact(t, env.DB, alice.ID, "bob", "local.example")
		thread := modeltest.MockItem(t, env.DB, alice, "alice's thread")

		var got relays
		n, err := NewImporter(env, WithRelay(&got)).Import(context.Background(), alice, contact, comment(bob, contact, thread))
		require.NoError(err)
		require.Equal(1, n)

		stored, err := models.NewItems(env.DB).FindByURI(alice.ID, "urn:X-dfrn:local.example:bob:reply")
		require.NoError(err)
		require.Equal(thread.ID, stored.ParentID)
		require.Equal(relays{stored.ID}, got)

		// a repeated notification stores nothing and relays nothing
		n, err = NewImporter(env, WithRelay(&got)).Import(context.Background(), alice, contact, comment(bob, contact, thread))
		require.NoError(err)
		require.Zero(n)
		require.Len(got, 1)
	})

	t.Run("replies to remote threads are not relayed", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		bob := modeltest.MockUser(t, env, "bob")
		contact := modeltest.MockContact(t, env.DB, alice.ID, "bob", "local.example")
		thread := modeltest.MockItem(t, env.DB, alice, "bob's thread", modeltest.From(contact))

		var got relays
		_, err := NewImporter(env, WithRelay(&got)).Import(context.Background(), alice, contact, comment(bob, contact, thread))
		require.NoError(err)
		require.Empty(got)
	})

	t.Run("top level posts are not relayed", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		bob := modeltest.MockUser(t, env, "bob")
		contact := modeltest.MockContact(t, env.DB, alice.ID, "bob", "local.example")
		post := modeltest.MockItem(t, env.DB, bob, "from bob")
		f := NewFeed(bob, post.CreatedAt)
		f.AddItems(post)
		b, err := f.Marshal()
		require.NoError(err)

		var got relays
		n, err := NewImporter(env, WithRelay(&got)).Import(context.Background(), alice, contact, &Form{Data: string(b), Perm: "r"})
		require.NoError(err)
		require.Equal(1, n)
		require.Empty(got)
	})
}
