package diaspora

import (
	"encoding/xml"
	"testing"

	"github.com/fedinode/fedinode/internal/crypto"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/models/modeltest"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	key, err := alice.PrivKey()
	require.NoError(t, err)
	pub, err := crypto.ParseRSAPublicKey(alice.PublicKey)
	require.NoError(t, err)

	t.Run("status message", func(t *testing.T) {
		require := require.New(t)
		item := modeltest.MockItem(t, env.DB, alice, "hello")
		b, err := Envelope(NewStatusMessage(alice.Addr(), item), alice.Addr(), key)
		require.NoError(err)

		payload, err := Open(b, pub)
		require.NoError(err)
		var got StatusMessage
		require.NoError(xml.Unmarshal(payload, &got))
		require.Equal(item.GUID, got.GUID)
		require.Equal(alice.Addr(), got.Author)
		require.True(got.Public)
		require.Equal("hello", got.Text)
	})

	t.Run("relayable signatures", func(t *testing.T) {
		require := require.New(t)
		root := modeltest.MockItem(t, env.DB, alice, "root")
		reply := modeltest.MockItem(t, env.DB, alice, "reply", modeltest.ReplyTo(root))

		r := NewRelayable(alice.Addr(), reply, root.GUID)
		c, ok := r.(*Comment)
		require.True(ok)
		sig, err := Sign(r, key)
		require.NoError(err)
		require.NoError(Verify(r, sig, pub))
		SetSignatures(r, sig, "")
		require.Equal(sig, c.AuthorSignature)

		c.Text = "changed"
		require.Error(Verify(r, sig, pub))
	})

	t.Run("likes", func(t *testing.T) {
		require := require.New(t)
		root := modeltest.MockItem(t, env.DB, alice, "root")
		like := modeltest.MockItem(t, env.DB, alice, "", modeltest.ReplyTo(root), func(i *models.Item) {
			i.Verb = models.VerbLike
		})
		l, ok := NewRelayable(alice.Addr(), like, root.GUID).(*Like)
		require.True(ok)
		require.True(l.Positive)
		require.Equal("Like", NewRetraction(alice.Addr(), like).TargetType)
		require.Equal("Post", NewRetraction(alice.Addr(), root).TargetType)
	})

	t.Run("account migration", func(t *testing.T) {
		require := require.New(t)
		m, err := NewAccountMigration(alice, key)
		require.NoError(err)
		require.NoError(Verify(migrationText{m}, m.Signature, pub))
	})
}
