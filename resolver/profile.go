package resolver

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-json-experiment/json"
)

// noscrape is the machine readable profile served by DFRN nodes.
type noscrape struct {
	Name    string `json:"fn"`
	Nick    string `json:"nick"`
	GUID    string `json:"guid"`
	Key     string `json:"key"`
	Photo   string `json:"photo"`
	Addr    string `json:"addr"`
	Request string `json:"dfrn-request"`
	Confirm string `json:"dfrn-confirm"`
	Notify  string `json:"dfrn-notify"`
	Poll    string `json:"dfrn-poll"`
}

// set copies v to *dst when v is not blank.
func set(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// noscrape merges the noscrape profile at u into rec.
func (r *Resolver) noscrape(ctx context.Context, u string, rec *Record) {
	b, err := r.get(ctx, u, "application/json")
	if err != nil {
		return
	}
	var ns noscrape
	if err := json.Unmarshal(b, &ns); err != nil {
		r.env.Log().Debug("resolver: noscrape", "url", u, "err", err)
		return
	}
	set(&rec.Name, ns.Name)
	set(&rec.Nick, ns.Nick)
	set(&rec.GUID, ns.GUID)
	set(&rec.Photo, ns.Photo)
	set(&rec.Addr, ns.Addr)
	set(&rec.Request, ns.Request)
	set(&rec.Confirm, ns.Confirm)
	set(&rec.Notify, ns.Notify)
	set(&rec.Poll, ns.Poll)
	if ns.Key != "" {
		rec.PubKey = pemKey(ns.Key)
	}
}

// hcard merges the h-card at u into rec.
func (r *Resolver) hcard(ctx context.Context, u string, rec *Record) {
	doc := r.document(ctx, u)
	if doc == nil {
		return
	}
	card := doc.Find(".vcard").First()
	if card.Length() == 0 {
		card = doc.Selection
	}
	set(&rec.Name, card.Find(".fn").First().Text())
	set(&rec.Nick, card.Find(".nickname").First().Text())
	set(&rec.GUID, card.Find(".uid").First().Text())
	if key := strings.TrimSpace(card.Find(".key").First().Text()); key != "" {
		rec.PubKey = pemKey(key)
	}
	for _, sel := range []string{"img.photo", "img.avatar"} {
		if src, ok := card.Find(sel).First().Attr("src"); ok {
			set(&rec.Photo, absolute(u, src))
			break
		}
	}
	doc.Find("link[rel^='dfrn-']").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		href, _ := s.Attr("href")
		switch rel {
		case "dfrn-request":
			set(&rec.Request, href)
		case "dfrn-confirm":
			set(&rec.Confirm, href)
		case "dfrn-notify":
			set(&rec.Notify, href)
		case "dfrn-poll":
			set(&rec.Poll, href)
		}
	})
}

// pumpProfile reads the display name and photo from a pump.io profile page.
func (r *Resolver) pumpProfile(ctx context.Context, u string, rec *Record) {
	doc := r.document(ctx, u)
	if doc == nil {
		return
	}
	set(&rec.Name, doc.Find(".p-name").First().Text())
	if src, ok := doc.Find(".u-photo").First().Attr("src"); ok {
		set(&rec.Photo, absolute(u, src))
	}
}

func (r *Resolver) document(ctx context.Context, u string) *goquery.Document {
	if u == "" {
		return nil
	}
	b, err := r.get(ctx, u, "text/html")
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil
	}
	return doc
}

// absolute resolves href relative to base.
func absolute(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
