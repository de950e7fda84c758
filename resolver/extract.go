package resolver

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/fedinode/fedinode/internal/crypto"
	"github.com/fedinode/fedinode/internal/webfinger"
	"github.com/fedinode/fedinode/models"
)

// An extractor recognises one protocol in a resource descriptor.
type extractor struct {
	protocol models.Protocol
	// required lists the link relations the descriptor must carry.
	required []string
	extract  func(ctx context.Context, r *Resolver, ref *reference, wf *webfinger.Webfinger) *Record
}

func (x *extractor) accepts(wf *webfinger.Webfinger) bool {
	for _, rel := range x.required {
		if wf.Href(rel) == "" {
			return false
		}
	}
	return true
}

// extractors in priority order.
var extractors = []extractor{{
	protocol: models.DFRN,
	required: []string{webfinger.RelProfilePage, webfinger.RelHCard, webfinger.RelDFRN},
	extract:  extractDFRN,
}, {
	protocol: models.Diaspora,
	required: []string{webfinger.RelProfilePage, webfinger.RelHCard},
	extract:  extractDiaspora,
}, {
	protocol: models.OStatus,
	required: []string{webfinger.RelProfilePage, webfinger.RelSalmon, webfinger.RelFeed, webfinger.RelMagicPublicKey},
	extract:  extractOStatus,
}, {
	protocol: models.PumpIO,
	required: []string{webfinger.RelProfilePage, webfinger.RelActivityInbox, webfinger.RelActivityOutbox, webfinger.RelDialback},
	extract:  extractPumpIO,
}, {
	protocol: models.Feed,
	required: []string{webfinger.RelFeed},
	extract:  extractFeed,
}}

// fromWebfinger returns the fields every protocol reads from a descriptor.
func fromWebfinger(wf *webfinger.Webfinger) *Record {
	rec := &Record{
		Addr: wf.Acct(),
	}
	for _, l := range wf.Links {
		if l.Href == "" {
			continue
		}
		switch l.Rel {
		case webfinger.RelProfilePage:
			if rec.URL == "" || l.Type == "text/html" {
				rec.URL = l.Href
			}
		case webfinger.RelFeed:
			if rec.Poll == "" || l.Type == "application/atom+xml" {
				rec.Poll = l.Href
			}
		case webfinger.RelPoco:
			rec.Poco = l.Href
		case webfinger.RelAvatar:
			rec.Photo = l.Href
		case webfinger.RelSeedLocation:
			rec.BaseURL = strings.TrimRight(l.Href, "/")
		case webfinger.RelGUID:
			rec.GUID = l.Href
		case webfinger.RelDiasporaPublicKey:
			if b, err := base64.StdEncoding.DecodeString(l.Href); err == nil {
				rec.PubKey = pemKey(string(b))
			}
		}
	}
	for _, alias := range wf.Aliases {
		if !strings.Contains(alias, "@") && !models.LinkCompare(alias, rec.URL) {
			rec.Alias = alias
			break
		}
	}
	return rec
}

// pemKey converts a PKCS1 or PKIX public key to PKIX PEM.
func pemKey(s string) string {
	pub, err := crypto.ParseRSAPublicKey([]byte(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	b, err := crypto.EncodePublicKey(pub)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return string(b)
}

func dfrnComplete(rec *Record) bool {
	return rec.Notify != "" && rec.Confirm != "" && rec.Request != "" && rec.Poll != "" && rec.Name != "" && rec.Photo != ""
}

func extractDFRN(ctx context.Context, r *Resolver, ref *reference, wf *webfinger.Webfinger) *Record {
	rec := fromWebfinger(wf)
	hcard := wf.Href(webfinger.RelHCard)
	if !dfrnComplete(rec) {
		noscrape := strings.Replace(strings.Replace(hcard, "/hcard/", "/noscrape/", 1), "/profile/", "/noscrape/", 1)
		r.noscrape(ctx, noscrape, rec)
	}
	if !dfrnComplete(rec) {
		r.hcard(ctx, hcard, rec)
	}
	return rec
}

func extractDiaspora(ctx context.Context, r *Resolver, ref *reference, wf *webfinger.Webfinger) *Record {
	rec := fromWebfinger(wf)
	if rec.Name == "" || rec.Photo == "" || rec.PubKey == "" || rec.GUID == "" {
		r.hcard(ctx, wf.Href(webfinger.RelHCard), rec)
	}
	if rec.GUID == "" || rec.BaseURL == "" || rec.PubKey == "" {
		return nil
	}
	// handles are case insensitive and always sent lower case
	rec.Addr = strings.ToLower(rec.Addr)
	rec.Notify = rec.BaseURL + "/receive/users/" + rec.GUID
	rec.Batch = rec.BaseURL + "/receive/public"
	return rec
}

func extractOStatus(ctx context.Context, r *Resolver, ref *reference, wf *webfinger.Webfinger) *Record {
	rec := fromWebfinger(wf)
	rec.Notify = wf.Href(webfinger.RelSalmon)
	pub, err := crypto.ParseMagicPublicKey(wf.Href(webfinger.RelMagicPublicKey))
	if err != nil {
		return nil
	}
	key, err := crypto.EncodePublicKey(pub)
	if err != nil {
		return nil
	}
	rec.PubKey = string(key)

	f := r.feed(ctx, rec.Poll, false)
	if f == nil {
		return nil
	}
	if f.Name != "" {
		rec.Name = f.Name
	}
	if f.Photo != "" {
		rec.Photo = f.Photo
	}
	if rec.Alias == "" && !models.LinkCompare(f.URL, rec.URL) && f.URL != rec.Poll {
		rec.Alias = f.URL
	}
	return rec
}

func extractPumpIO(ctx context.Context, r *Resolver, ref *reference, wf *webfinger.Webfinger) *Record {
	rec := fromWebfinger(wf)
	rec.Notify = wf.Href(webfinger.RelActivityInbox)
	rec.Poll = wf.Href(webfinger.RelActivityOutbox)
	r.pumpProfile(ctx, rec.URL, rec)
	return rec
}

func extractFeed(ctx context.Context, r *Resolver, ref *reference, wf *webfinger.Webfinger) *Record {
	wfRec := fromWebfinger(wf)
	rec := r.feed(ctx, wfRec.Poll, false)
	if rec == nil {
		return nil
	}
	if wfRec.URL != "" {
		rec.URL = wfRec.URL
	}
	rec.fill(wfRec)
	return rec
}
