package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	c, err := Load("")
	require.NoError(err)
	require.Equal(24*time.Hour, c.Resolver.CacheTTL)
	require.Equal(32*24*time.Hour, c.Liveness.ArchiveAfter)
	require.Equal(1, c.Delivery.BatchSize)
	require.True(c.Reconciler.Complete)
	require.Equal(time.Minute, c.Workers.Sweep)
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
baseurl: https://www.social.example/
hostname: ""
federation:
  dfrn_only: true
  hubs: ["https://hub.example/", " "]
delivery:
  batch_size: 5
  interval: 2s
resolver:
  xrd_timeout: 5s
workers:
  retry: 90s
`), 0o644)
	require.NoError(err)

	c, err := Load(path)
	require.NoError(err)
	require.Equal("https://www.social.example", c.BaseURL)
	require.Equal("www.social.example", c.Hostname)
	require.Equal("social.example", c.LocalHost())
	require.True(c.Federation.DFRNOnly)
	require.Equal([]string{"https://hub.example/"}, c.Federation.Hubs)
	require.Equal(5, c.Delivery.BatchSize)
	require.Equal(2*time.Second, c.Delivery.Interval)
	require.Equal(5*time.Second, c.Resolver.XRDTimeout)
	require.Equal(90*time.Second, c.Workers.Retry)
	require.Equal(time.Hour, c.Workers.Refresh)
	// untouched sections keep their defaults
	require.Equal(24*time.Hour, c.Resolver.CacheTTL)
	require.Equal("https://www.social.example/profile/alice", c.ProfileURL("alice"))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FEDINODE_HOSTNAME":   "node.example",
		"FEDINODE_DFRN_ONLY":  "true",
		"FEDINODE_BATCH_SIZE": "3",
		"FEDINODE_HUBS":       "https://a.example/,https://b.example/",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	t.Run("overrides", func(t *testing.T) {
		require := require.New(t)

		c := Default()
		require.NoError(c.applyEnv(lookup))
		require.Equal("node.example", c.Hostname)
		require.True(c.Federation.DFRNOnly)
		require.Equal(3, c.Delivery.BatchSize)
		require.Len(c.Federation.Hubs, 2)
	})
	t.Run("invalid bool", func(t *testing.T) {
		require := require.New(t)

		env["FEDINODE_DFRN_ONLY"] = "sometimes"
		c := Default()
		require.Error(c.applyEnv(lookup))
	})
}
