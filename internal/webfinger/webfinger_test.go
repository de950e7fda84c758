package webfinger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcctParse(t *testing.T) {
	tc := []struct {
		in     string
		expect Acct
	}{
		{"acct:foo@bar.com", Acct{User: "foo", Host: "bar.com"}},
		{"bob@example.org", Acct{User: "bob", Host: "example.org"}},
		{"@bob@example.org", Acct{User: "bob", Host: "example.org"}},
	}
	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			req := require.New(t)
			got, err := Parse(tt.in)
			req.NoError(err)
			req.Equal(tt.expect, *got)
			req.Equal("acct:"+tt.expect.Address(), got.String())
		})
	}
}

const hostMeta = `<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Link rel="lrdd" type="application/xrd+xml" template="https://example.org/xrd?uri={uri}"/>
  <Link rel="lrdd" type="application/json" template="https://example.org/.well-known/webfinger?resource={uri}"/>
</XRD>`

func TestDecodeHostMeta(t *testing.T) {
	require := require.New(t)

	wf, err := Decode([]byte(hostMeta))
	require.NoError(err)
	lrdd := wf.LRDD()
	require.Equal("https://example.org/xrd?uri={uri}", lrdd["lrdd-xml"])
	require.Equal("https://example.org/.well-known/webfinger?resource={uri}", lrdd["lrdd-json"])
	require.Equal([]string{lrdd["lrdd-xml"], lrdd["lrdd-json"]}, lrdd.Ordered())
}

func TestDecodeJRD(t *testing.T) {
	require := require.New(t)

	wf, err := Decode([]byte(`{
		"subject": "acct:bob@example.org",
		"aliases": ["https://example.org/profile/bob"],
		"links": [
			{"rel": "http://webfinger.net/rel/profile-page", "type": "text/html", "href": "https://example.org/profile/bob"},
			{"rel": "http://purl.org/macgirvin/dfrn/1.0", "href": "https://example.org/profile/bob"},
			{"rel": "subscribe", "template": "https://example.org/follow?url={uri}"}
		]
	}`))
	require.NoError(err)
	require.Equal("bob@example.org", wf.Acct())
	require.Equal("https://example.org/profile/bob", wf.Href(RelDFRN))
	require.Equal("", wf.Href(RelSalmon))
}

func TestXRDRoundTrip(t *testing.T) {
	require := require.New(t)

	wf := &Webfinger{
		Subject: "acct:bob@example.org",
		Aliases: []string{"https://example.org/profile/bob"},
		Links: []Link{
			{Rel: RelHCard, Type: "text/html", Href: "https://example.org/hcard/bob"},
		},
	}
	b, err := wf.MarshalXRD()
	require.NoError(err)

	got, err := Decode(b)
	require.NoError(err)
	require.Equal(wf.Subject, got.Subject)
	require.Equal(wf.Aliases, got.Aliases)
	require.Equal(wf.Links, got.Links)
}

func TestExpand(t *testing.T) {
	require := require.New(t)

	require.Equal("https://example.org/xrd?uri=acct%3Abob%40example.org", Expand("https://example.org/xrd?uri={uri}", "acct:bob@example.org"))
}
