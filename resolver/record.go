package resolver

import (
	"net/url"
	"strings"

	"github.com/fedinode/fedinode/models"
)

// Record is the outcome of a resolution: the protocol a remote actor speaks
// and what is known of its profile and endpoints.
type Record struct {
	Protocol models.Protocol `json:"network"`
	URL      string          `json:"url"`
	Addr     string          `json:"addr,omitempty"`
	Alias    string          `json:"alias,omitempty"`
	Name     string          `json:"name,omitempty"`
	Nick     string          `json:"nick,omitempty"`
	Photo    string          `json:"photo,omitempty"`
	Notify   string          `json:"notify,omitempty"`
	Poll     string          `json:"poll,omitempty"`
	Request  string          `json:"request,omitempty"`
	Confirm  string          `json:"confirm,omitempty"`
	Batch    string          `json:"batch,omitempty"`
	Poco     string          `json:"poco,omitempty"`
	GUID     string          `json:"guid,omitempty"`
	BaseURL  string          `json:"baseurl,omitempty"`
	PubKey   string          `json:"pubkey,omitempty"`
}

// Complete reports whether the record carries a full identity.
func (r *Record) Complete() bool {
	return r.Name != "" && r.Nick != "" && r.URL != "" && r.Addr != "" && r.Poll != ""
}

// Contact returns a contact populated from the record.
func (r *Record) Contact() *models.Contact {
	return &models.Contact{
		URL:      r.URL,
		Addr:     r.Addr,
		Alias:    r.Alias,
		Protocol: r.Protocol,
		Name:     r.Name,
		Nick:     r.Nick,
		Photo:    r.Photo,
		Notify:   r.Notify,
		Poll:     r.Poll,
		Request:  r.Request,
		Confirm:  r.Confirm,
		Batch:    r.Batch,
		Poco:     r.Poco,
		GUID:     r.GUID,
		BaseURL:  r.BaseURL,
		PubKey:   r.PubKey,
	}
}

// fill copies the fields of src which are empty in r.
func (r *Record) fill(src *Record) {
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&r.URL, src.URL}, {&r.Addr, src.Addr}, {&r.Alias, src.Alias},
		{&r.Name, src.Name}, {&r.Nick, src.Nick}, {&r.Photo, src.Photo},
		{&r.Notify, src.Notify}, {&r.Poll, src.Poll}, {&r.Request, src.Request},
		{&r.Confirm, src.Confirm}, {&r.Batch, src.Batch}, {&r.Poco, src.Poco},
		{&r.GUID, src.GUID}, {&r.BaseURL, src.BaseURL}, {&r.PubKey, src.PubKey},
	} {
		if *f.dst == "" {
			*f.dst = f.src
		}
	}
}

// finish fills the display fields which can be derived from what is known.
func (r *Record) finish(ref *reference, defaultAvatar string) {
	if r.URL == "" {
		r.URL = ref.raw
	}
	if r.Protocol == models.Phantom {
		return
	}
	if r.Addr == "" && !ref.isURL() {
		r.Addr = ref.addr
	}
	if r.Nick == "" && ref.nick != "" {
		r.Nick = ref.nick
	}
	if r.Name == "" {
		r.Name = r.Nick
	}
	if r.Name == "" {
		r.Name = r.URL
	}
	if r.Nick == "" {
		nick, _, _ := strings.Cut(r.Name, " ")
		r.Nick = strings.ToLower(nick)
	}
	if r.Photo == "" {
		r.Photo = defaultAvatar
	}
	if r.BaseURL == "" {
		r.BaseURL = ref.base
	}
	if r.BaseURL == "" {
		if u, err := url.Parse(r.URL); err == nil && u.Host != "" {
			r.BaseURL = u.Scheme + "://" + u.Host
		}
	}
}

// phantom returns the record of an unresolvable reference.
func phantom(ref string) *Record {
	return &Record{
		Protocol: models.Phantom,
		URL:      ref,
	}
}

// reference is a classified resolution input.
type reference struct {
	raw string
	// addr is the user@host address named by the reference, if any.
	addr string
	// url is set for URL references.
	url  *url.URL
	host string
	nick string
	// base is the scheme and host at which discovery succeeded.
	base string
}

func (r *reference) isURL() bool {
	return r.url != nil
}

// parseReference classifies ref as a URL or a user@host address.
func parseReference(ref string) (*reference, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		r := &reference{raw: ref, url: u, host: u.Host}
		path := strings.Trim(u.Path, "/")
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			path = path[i+1:]
		}
		if nick := strings.TrimLeft(path, "~@"); nick != "" {
			r.nick = nick
			r.addr = nick + "@" + u.Host
		}
		return r, true
	}
	addr := strings.TrimPrefix(strings.TrimPrefix(ref, "acct:"), "@")
	user, host, ok := cutLast(addr, "@")
	if !ok || user == "" || host == "" {
		return nil, false
	}
	return &reference{raw: ref, addr: user + "@" + host, host: host, nick: user}, true
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
