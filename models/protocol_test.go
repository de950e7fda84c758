package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormaliseLink(t *testing.T) {
	tests := map[string]string{
		"https://Example.ORG/profile/bob/": "http://example.org/profile/bob",
		"http://www.example.org/bob":       "http://example.org/bob",
		"HTTPS://example.org":              "http://example.org",
		"http://example.org/Bob":           "http://example.org/Bob",
		"mailto:bob@example.org":           "mailto:bob@example.org",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, NormaliseLink(in))
		})
	}
}

func TestLinkCompare(t *testing.T) {
	require := require.New(t)
	require.True(LinkCompare("https://example.org/bob/", "http://www.example.org/bob"))
	require.False(LinkCompare("https://example.org/bob", "https://example.org/alice"))
}

func TestParseProtocol(t *testing.T) {
	require := require.New(t)
	p, err := ParseProtocol("dspr")
	require.NoError(err)
	require.Equal(Diaspora, p)

	p, err = ParseProtocol("ostatus")
	require.NoError(err)
	require.Equal(OStatus, p)

	p, err = ParseProtocol("")
	require.NoError(err)
	require.Equal(Protocol(""), p)

	_, err = ParseProtocol("zot")
	require.Error(err)
}
