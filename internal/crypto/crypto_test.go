package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeypairRoundTrip(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateRSAKeypair()
	require.NoError(err)

	pub, priv, err := ParseRSAPrivateKey(kp.PrivateKey)
	require.NoError(err)
	require.NotNil(priv)

	parsed, err := ParseRSAPublicKey(kp.PublicKey)
	require.NoError(err)
	require.True(pub.Equal(parsed))
}

func TestMagicPublicKey(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		require := require.New(t)

		kp, err := GenerateRSAKeypair()
		require.NoError(err)
		pub, err := ParseRSAPublicKey(kp.PublicKey)
		require.NoError(err)

		got, err := ParseMagicPublicKey(MagicPublicKey(pub))
		require.NoError(err)
		require.True(pub.Equal(got))
	})
	t.Run("data url", func(t *testing.T) {
		require := require.New(t)

		kp, err := GenerateRSAKeypair()
		require.NoError(err)
		pub, err := ParseRSAPublicKey(kp.PublicKey)
		require.NoError(err)

		got, err := ParseMagicPublicKey("data:application/magic-public-key," + MagicPublicKey(pub))
		require.NoError(err)
		require.True(pub.Equal(got))
	})
	t.Run("malformed", func(t *testing.T) {
		require := require.New(t)

		_, err := ParseMagicPublicKey("RSA.only")
		require.Error(err)
	})
}
