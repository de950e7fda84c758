// Package dfrn builds, transmits and imports DFRN envelopes: Atom feeds
// extended with the dfrn namespace.
package dfrn

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

const (
	NSAtom     = "http://www.w3.org/2005/Atom"
	NSThread   = "http://purl.org/syndication/thread/1.0"
	NSTomb     = "http://purl.org/atompub/tombstones/1.0"
	NSActivity = "http://activitystrea.ms/spec/1.0/"
	NSDFRN     = "http://purl.org/macgirvin/dfrn/1.0"

	ContentType = "application/atom+xml"
)

// Feed is a DFRN envelope. A feed carries either entries and tombstones,
// or exactly one of a mail, a suggestion or a relocation notice.
type Feed struct {
	XMLName  xml.Name     `xml:"http://www.w3.org/2005/Atom feed"`
	ID       string       `xml:"id"`
	Title    string       `xml:"title"`
	Updated  string       `xml:"updated"`
	Author   *Person      `xml:"author,omitempty"`
	Owner    *Person      `xml:"http://purl.org/macgirvin/dfrn/1.0 owner,omitempty"`
	Entries  []*Entry     `xml:"entry"`
	Deleted  []*Tombstone `xml:"http://purl.org/atompub/tombstones/1.0 deleted-entry"`
	Mail     *Mail        `xml:"http://purl.org/macgirvin/dfrn/1.0 mail,omitempty"`
	Suggest  *Suggest     `xml:"http://purl.org/macgirvin/dfrn/1.0 suggest,omitempty"`
	Relocate *Relocate    `xml:"http://purl.org/macgirvin/dfrn/1.0 relocate,omitempty"`
}

type Person struct {
	Name   string `xml:"name"`
	URI    string `xml:"uri"`
	Handle string `xml:"http://purl.org/macgirvin/dfrn/1.0 handle,omitempty"`
	Links  []Link `xml:"link"`
}

// Avatar returns the href of the person's avatar link.
func (p *Person) Avatar() string {
	for _, l := range p.Links {
		if l.Rel == "avatar" {
			return l.Href
		}
	}
	return ""
}

type Link struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr,omitempty"`
	Href string `xml:"href,attr"`
}

type Entry struct {
	Author     Person     `xml:"author"`
	Owner      *Person    `xml:"http://purl.org/macgirvin/dfrn/1.0 owner,omitempty"`
	ID         string     `xml:"id"`
	GUID       string     `xml:"http://purl.org/macgirvin/dfrn/1.0 guid,omitempty"`
	Title      string     `xml:"title"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	Content    Content    `xml:"content"`
	Links      []Link     `xml:"link"`
	InReplyTo  *InReplyTo `xml:"http://purl.org/syndication/thread/1.0 in-reply-to,omitempty"`
	Verb       string     `xml:"http://activitystrea.ms/spec/1.0/ verb,omitempty"`
	ObjectType string     `xml:"http://activitystrea.ms/spec/1.0/ object-type,omitempty"`
	Private    int        `xml:"http://purl.org/macgirvin/dfrn/1.0 private,omitempty"`
	Forum      int        `xml:"http://purl.org/macgirvin/dfrn/1.0 forum,omitempty"`
	App        string     `xml:"http://purl.org/macgirvin/dfrn/1.0 app,omitempty"`
	// Signature is the Diaspora author signature of relayed comments.
	Signature string `xml:"http://purl.org/macgirvin/dfrn/1.0 diaspora_signature,omitempty"`
}

// Mentions returns the hrefs of the entry's mention links.
func (e *Entry) Mentions() []string {
	var hrefs []string
	for _, l := range e.Links {
		if l.Rel == "mentioned" {
			hrefs = append(hrefs, l.Href)
		}
	}
	return hrefs
}

// Alternate returns the href of the entry's alternate link.
func (e *Entry) Alternate() string {
	for _, l := range e.Links {
		if l.Rel == "alternate" {
			return l.Href
		}
	}
	return ""
}

type Content struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type InReplyTo struct {
	Ref  string `xml:"ref,attr"`
	Href string `xml:"href,attr,omitempty"`
}

// Tombstone announces the deletion of an entry.
type Tombstone struct {
	Ref  string `xml:"ref,attr"`
	When string `xml:"when,attr"`
}

type Mail struct {
	Sender    Person `xml:"http://purl.org/macgirvin/dfrn/1.0 sender"`
	ID        string `xml:"http://purl.org/macgirvin/dfrn/1.0 id"`
	InReplyTo string `xml:"http://purl.org/macgirvin/dfrn/1.0 in-reply-to"`
	SentDate  string `xml:"http://purl.org/macgirvin/dfrn/1.0 sentdate"`
	Subject   string `xml:"http://purl.org/macgirvin/dfrn/1.0 subject"`
	Content   string `xml:"http://purl.org/macgirvin/dfrn/1.0 content"`
}

type Suggest struct {
	URL     string `xml:"http://purl.org/macgirvin/dfrn/1.0 url"`
	Name    string `xml:"http://purl.org/macgirvin/dfrn/1.0 name"`
	Photo   string `xml:"http://purl.org/macgirvin/dfrn/1.0 photo"`
	Request string `xml:"http://purl.org/macgirvin/dfrn/1.0 request"`
	Note    string `xml:"http://purl.org/macgirvin/dfrn/1.0 note"`
}

type Relocate struct {
	URL        string `xml:"http://purl.org/macgirvin/dfrn/1.0 url"`
	Name       string `xml:"http://purl.org/macgirvin/dfrn/1.0 name"`
	Addr       string `xml:"http://purl.org/macgirvin/dfrn/1.0 addr"`
	Avatar     string `xml:"http://purl.org/macgirvin/dfrn/1.0 avatar"`
	Request    string `xml:"http://purl.org/macgirvin/dfrn/1.0 request"`
	Confirm    string `xml:"http://purl.org/macgirvin/dfrn/1.0 confirm"`
	Notify     string `xml:"http://purl.org/macgirvin/dfrn/1.0 notify"`
	Poll       string `xml:"http://purl.org/macgirvin/dfrn/1.0 poll"`
	SitePubKey string `xml:"http://purl.org/macgirvin/dfrn/1.0 sitepubkey"`
}

// Marshal returns the XML document of the feed.
func (f *Feed) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse decodes a DFRN feed.
func Parse(b []byte) (*Feed, error) {
	var f Feed
	if err := xml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("dfrn: %w", err)
	}
	return &f, nil
}

func atomTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// MarshalEntry returns the XML document of a single Atom entry.
func MarshalEntry(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{Name: xml.Name{Space: NSAtom, Local: "entry"}}
	if err := enc.EncodeElement(e, start); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
