// Package resolver discovers which protocol a remote actor speaks, and its
// endpoints, from a user@host address or a profile URL.
package resolver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fedinode/fedinode/internal/metrics"
	"github.com/fedinode/fedinode/internal/safehttp"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/internal/webfinger"
	"github.com/fedinode/fedinode/models"
	"github.com/go-json-experiment/json"
)

// maxBodySize bounds every document fetched during discovery.
const maxBodySize = 2 << 20

// Resolver resolves references to Records. Resolution never fails: a
// reference which cannot be resolved yields a Phantom record.
type Resolver struct {
	env        *models.Env
	client     *http.Client
	cache      Cache
	mailbox    Mailbox
	metrics    metrics.Recorder
	extractors []extractor
}

type Option func(*Resolver)

// WithClient sets the HTTP client used for discovery.
func WithClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithCache replaces the default database cache.
func WithCache(cache Cache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithMailbox enables resolution of mail contacts.
func WithMailbox(mb Mailbox) Option {
	return func(r *Resolver) {
		r.mailbox = mb
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func New(env *models.Env, opts ...Option) *Resolver {
	r := &Resolver{
		env:        env,
		metrics:    metrics.Discard,
		extractors: extractors,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = safehttp.NewClient(env.Config.Resolver.XRDTimeout, env.Config.Resolver.AllowPrivateNetworks)
	}
	if r.cache == nil {
		r.cache = NewDBCache(env.DB)
	}
	return r
}

// CacheKey returns the key under which the resolution of ref, restricted to
// filter, is cached.
func CacheKey(filter models.Protocol, ref string) string {
	return "probe_url:" + string(filter) + ":" + ref
}

// Resolve resolves ref. If filter is set only that protocol is tried. uid
// is the local user on whose behalf the resolution happens; it is required
// to resolve mail contacts.
func (r *Resolver) Resolve(ctx context.Context, ref string, filter models.Protocol, uid snowflake.ID) *Record {
	ref = strings.TrimSpace(ref)
	key := CacheKey(filter, ref)
	if b, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var rec Record
		if err := json.Unmarshal(b, &rec); err == nil {
			r.metrics.RecordResolve(string(rec.Protocol), true)
			return &rec
		}
	}
	return r.resolve(ctx, ref, filter, uid)
}

// Refresh resolves ref ignoring any cached result.
func (r *Resolver) Refresh(ctx context.Context, ref string, filter models.Protocol, uid snowflake.ID) *Record {
	return r.resolve(ctx, strings.TrimSpace(ref), filter, uid)
}

func (r *Resolver) resolve(ctx context.Context, ref string, filter models.Protocol, uid snowflake.ID) *Record {
	log := r.env.Log().With("ref", ref, "filter", filter)
	rec := r.probe(ctx, ref, filter, uid)
	r.metrics.RecordResolve(string(rec.Protocol), false)
	log.Debug("resolved", "protocol", rec.Protocol, "url", rec.URL)

	if rec.Protocol == models.Phantom || rec.Protocol == models.Mail {
		return rec
	}
	if b, err := json.Marshal(rec); err == nil {
		if err := r.cache.Set(ctx, CacheKey(filter, ref), b, r.env.Config.Resolver.CacheTTL); err != nil {
			log.Warn("resolver: cache", "err", err)
		}
	}
	if rec.Complete() && rec.Protocol != models.Feed {
		if err := models.NewContacts(r.env.DB.WithContext(ctx)).UpdateShared(rec.Contact()); err != nil {
			log.Warn("resolver: update shared contact", "err", err)
		}
	}
	return rec
}

func (r *Resolver) probe(ctx context.Context, raw string, filter models.Protocol, uid snowflake.ID) *Record {
	if strings.HasPrefix(raw, "mailto:") || filter == models.Mail {
		addr := strings.TrimPrefix(raw, "mailto:")
		if rec := r.mail(ctx, addr, uid); rec != nil {
			return rec
		}
		return phantom(raw)
	}

	ref, ok := parseReference(raw)
	if !ok {
		return phantom(raw)
	}
	rec := r.discover(ctx, ref, filter)
	if rec == nil && ref.isURL() && (filter == "" || filter == models.Feed) {
		rec = r.feed(ctx, ref.raw, true)
	}
	if rec == nil && !ref.isURL() && uid != 0 {
		rec = r.mail(ctx, ref.addr, uid)
	}
	if rec == nil {
		return phantom(raw)
	}
	rec.finish(ref, r.env.Config.Resolver.DefaultAvatar)
	return rec
}

// discover runs host-meta and webfinger discovery for ref and hands the
// descriptor to the protocol extractors.
func (r *Resolver) discover(ctx context.Context, ref *reference, filter models.Protocol) *Record {
	templates := r.hostMeta(ctx, ref)
	if len(templates) == 0 {
		return nil
	}
	wf := r.webfinger(ctx, ref, templates)
	if wf == nil {
		return nil
	}
	for _, x := range r.extractors {
		if filter != "" && filter != x.protocol {
			continue
		}
		if !x.accepts(wf) {
			continue
		}
		if rec := x.extract(ctx, r, ref, wf); rec != nil {
			rec.Protocol = x.protocol
			return rec
		}
	}
	return nil
}

// hostMeta fetches the host-meta document of ref's host, first over https
// then http. If the host has none, successive path segments of a URL
// reference are appended to the host and the fetch retried.
func (r *Resolver) hostMeta(ctx context.Context, ref *reference) []string {
	hosts := []string{ref.host}
	if ref.isURL() {
		segs := strings.Split(strings.Trim(ref.url.Path, "/"), "/")
		host := ref.host
		for i := 0; i < len(segs)-1 && i < r.env.Config.Resolver.MaxPathDepth; i++ {
			if segs[i] == "" {
				break
			}
			host += "/" + segs[i]
			hosts = append(hosts, host)
		}
	}
	for _, host := range hosts {
		for _, scheme := range []string{"https", "http"} {
			b, err := r.get(ctx, scheme+"://"+host+"/.well-known/host-meta", "application/xrd+xml,application/json,text/xml")
			if err != nil {
				continue
			}
			wf, err := webfinger.Decode(b)
			if err != nil {
				continue
			}
			if templates := wf.LRDD().Ordered(); len(templates) > 0 {
				ref.base = scheme + "://" + host
				return templates
			}
		}
	}
	return nil
}

// webfinger requests the resource descriptor of ref from each template in
// turn. A URL reference is asked for by URL first; the address derived from
// its last path segment is only a fallback, as it may name another account.
func (r *Resolver) webfinger(ctx context.Context, ref *reference, templates []string) *webfinger.Webfinger {
	var resources []string
	if ref.isURL() {
		resources = append(resources, ref.raw)
	}
	if ref.addr != "" {
		resources = append(resources, ref.addr, "acct:"+ref.addr)
	}
	for _, resource := range resources {
		for _, tmpl := range templates {
			b, err := r.get(ctx, webfinger.Expand(tmpl, resource), "application/jrd+json,application/xrd+xml,application/json")
			if err != nil {
				continue
			}
			wf, err := webfinger.Decode(b)
			if err != nil || len(wf.Links) == 0 {
				continue
			}
			return wf
		}
	}
	return nil
}

// get fetches url within the discovery timeout.
func (r *Resolver) get(ctx context.Context, url, accept string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	var buf bytes.Buffer
	err := requests.URL(url).
		Client(r.client).
		Accept(accept).
		Handle(func(res *http.Response) error {
			defer res.Body.Close()
			_, err := buf.ReadFrom(io.LimitReader(res.Body, maxBodySize))
			return err
		}).
		Fetch(ctx)
	if err != nil {
		r.env.Log().Debug("resolver: fetch failed", "url", url, "err", err)
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Resolver) timeout() time.Duration {
	if t := r.env.Config.Resolver.XRDTimeout; t > 0 {
		return t
	}
	return 20 * time.Second
}
