package resolver

import (
	"bytes"
	"context"
	"strings"

	"github.com/fedinode/fedinode/models"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

const feedAccept = "application/atom+xml,application/rss+xml,text/xml;q=0.9,text/html;q=0.8"

// feed resolves u as a syndication feed. If u is an HTML page and discover
// is set, the page's alternate feed link is followed once.
func (r *Resolver) feed(ctx context.Context, u string, discover bool) *Record {
	if u == "" {
		return nil
	}
	b, err := r.get(ctx, u, feedAccept)
	if err != nil {
		return nil
	}
	f, err := gofeed.NewParser().Parse(bytes.NewReader(b))
	if err != nil {
		if !discover {
			return nil
		}
		link := alternateFeed(b, u)
		if link == "" {
			return nil
		}
		return r.feed(ctx, link, false)
	}

	rec := &Record{
		Protocol: models.Feed,
		Poll:     u,
		URL:      f.Link,
		Name:     f.Title,
	}
	if rec.URL == "" {
		rec.URL = u
	}
	if f.Author != nil && f.Author.Name != "" {
		rec.Name = f.Author.Name
	}
	if f.Image != nil {
		rec.Photo = absolute(u, f.Image.URL)
	}
	return rec
}

// alternateFeed returns the first RSS or Atom alternate link in the head of
// the HTML document b, resolved against base.
func alternateFeed(b []byte, base string) string {
	z := html.NewTokenizer(bytes.NewReader(b))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.EndTagToken:
			if tn, _ := z.TagName(); string(tn) == "head" {
				return ""
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			switch string(tn) {
			case "body":
				return ""
			case "link":
			default:
				continue
			}
			var rel, typ, href string
			for more := hasAttr; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				switch strings.ToLower(string(k)) {
				case "rel":
					rel = strings.ToLower(string(v))
				case "type":
					typ = strings.ToLower(string(v))
				case "href":
					href = string(v)
				}
			}
			if rel != "alternate" || href == "" {
				continue
			}
			if typ == "application/rss+xml" || typ == "application/atom+xml" {
				return absolute(base, href)
			}
		}
	}
}
