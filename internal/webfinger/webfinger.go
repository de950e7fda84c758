// Package webfinger implements the discovery documents used to resolve
// remote identities: host-meta, and webfinger in both its XRD (XML) and
// JRD (JSON) encodings.
package webfinger

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-json-experiment/json"
)

// Link relations understood by the resolver.
const (
	RelLRDD              = "lrdd"
	RelProfilePage       = "http://webfinger.net/rel/profile-page"
	RelHCard             = "http://microformats.org/profile/hcard"
	RelAvatar            = "http://webfinger.net/rel/avatar"
	RelDFRN              = "http://purl.org/macgirvin/dfrn/1.0"
	RelFeed              = "http://schemas.google.com/g/2010#updates-from"
	RelPoco              = "http://portablecontacts.net/spec/1.0"
	RelSeedLocation      = "http://joindiaspora.com/seed_location"
	RelGUID              = "http://joindiaspora.com/guid"
	RelDiasporaPublicKey = "diaspora-public-key"
	RelSalmon            = "salmon"
	RelMagicPublicKey    = "magic-public-key"
	RelActivityInbox     = "activity-inbox"
	RelActivityOutbox    = "activity-outbox"
	RelDialback          = "dialback"
)

const xrdNamespace = "http://docs.oasis-open.org/ns/xri/xrd-1.0"

// Webfinger is a resource descriptor. The same structure carries host-meta
// documents, which only populate Links.
type Webfinger struct {
	XMLName xml.Name `json:"-" xml:"XRD"`
	Subject string   `json:"subject,omitempty" xml:"Subject,omitempty"`
	Aliases []string `json:"aliases,omitempty" xml:"Alias"`
	Links   []Link   `json:"links" xml:"Link"`
}

type Link struct {
	Rel      string `json:"rel" xml:"rel,attr"`
	Type     string `json:"type,omitempty" xml:"type,attr,omitempty"`
	Href     string `json:"href,omitempty" xml:"href,attr,omitempty"`
	Template string `json:"template,omitempty" xml:"template,attr,omitempty"`
}

// Decode parses a descriptor which may be either XRD or JRD.
func Decode(body []byte) (*Webfinger, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty descriptor")
	}
	var wf Webfinger
	if body[0] == '<' {
		if err := xml.Unmarshal(body, &wf); err != nil {
			return nil, fmt.Errorf("xrd: %w", err)
		}
		return &wf, nil
	}
	if err := json.Unmarshal(body, &wf); err != nil {
		return nil, fmt.Errorf("jrd: %w", err)
	}
	return &wf, nil
}

// MarshalXRD returns the XRD encoding of wf.
func (wf *Webfinger) MarshalXRD() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	start := xml.StartElement{
		Name: xml.Name{Local: "XRD"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: xrdNamespace}},
	}
	if err := enc.EncodeElement(wf, start); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Link returns the first link with the given relation and a non empty href.
func (wf *Webfinger) Link(rel string) (Link, bool) {
	for _, l := range wf.Links {
		if l.Rel == rel && l.Href != "" {
			return l, true
		}
	}
	return Link{}, false
}

// Href returns the href of the first link with the given relation, or "".
func (wf *Webfinger) Href(rel string) string {
	l, _ := wf.Link(rel)
	return l.Href
}

// Acct returns the account address named by the subject, or failing that
// the first acct: alias.
func (wf *Webfinger) Acct() string {
	if strings.HasPrefix(wf.Subject, "acct:") {
		return strings.TrimPrefix(wf.Subject, "acct:")
	}
	for _, alias := range wf.Aliases {
		if strings.HasPrefix(alias, "acct:") {
			return strings.TrimPrefix(alias, "acct:")
		}
	}
	return ""
}

// Templates is the set of lrdd templates advertised by a host-meta document
// keyed by their flavour: "lrdd-xml", "lrdd-json" or "lrdd".
type Templates map[string]string

// LRDD extracts the lrdd templates from a host-meta document.
func (wf *Webfinger) LRDD() Templates {
	t := make(Templates)
	for _, l := range wf.Links {
		if l.Rel != RelLRDD || l.Template == "" {
			continue
		}
		switch l.Type {
		case "application/xrd+xml":
			t["lrdd-xml"] = l.Template
		case "application/json", "application/jrd+json":
			t["lrdd-json"] = l.Template
		default:
			t["lrdd"] = l.Template
		}
	}
	return t
}

// Ordered returns the templates in probing order.
func (t Templates) Ordered() []string {
	var r []string
	for _, k := range []string{"lrdd", "lrdd-xml", "lrdd-json"} {
		if v, ok := t[k]; ok {
			r = append(r, v)
		}
	}
	return r
}

// Expand substitutes the query escaped resource into an lrdd template.
func Expand(template, resource string) string {
	return strings.ReplaceAll(template, "{uri}", url.QueryEscape(resource))
}

type Acct struct {
	User string
	Host string
}

func (a *Acct) String() string {
	return "acct:" + a.User + "@" + a.Host
}

// Address returns the bare user@host form.
func (a *Acct) Address() string {
	return a.User + "@" + a.Host
}

func Parse(query string) (*Acct, error) {
	query = strings.TrimPrefix(query, "acct:")
	// Remove the leading @, if there's one.
	query = strings.TrimPrefix(query, "@")

	// In case the handle has been URL encoded
	query, err := url.QueryUnescape(query)
	if err != nil {
		return nil, err
	}
	user, host, ok := strings.Cut(query, "@")
	if !ok {
		return &Acct{User: user}, nil
	}
	if user == "" || host == "" || strings.Contains(host, "@") {
		return nil, fmt.Errorf("invalid acct: %q", query)
	}
	return &Acct{User: user, Host: host}, nil
}
