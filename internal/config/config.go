// Package config loads the node configuration from a YAML file with
// FEDINODE_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Hostname is the public host name of this node, eg. example.com.
	Hostname string `yaml:"hostname"`
	// BaseURL is the scheme and host prefix of every local URL.
	BaseURL string `yaml:"baseurl"`
	DSN     string `yaml:"dsn"`
	Listen  string `yaml:"listen"`

	Federation Federation `yaml:"federation"`
	Delivery   Delivery   `yaml:"delivery"`
	Resolver   Resolver   `yaml:"resolver"`
	Liveness   Liveness   `yaml:"liveness"`
	Reconciler Reconciler `yaml:"reconciler"`
	Mail       Mail       `yaml:"mail"`
	Redis      Redis      `yaml:"redis"`
	Workers    Workers    `yaml:"workers"`
}

// Federation switches individual protocols on and off.
type Federation struct {
	// DFRNOnly restricts outbound federation to DFRN.
	DFRNOnly        bool `yaml:"dfrn_only"`
	DiasporaEnabled bool `yaml:"diaspora_enabled"`
	OStatusEnabled  bool `yaml:"ostatus_enabled"`
	MailEnabled     bool `yaml:"mail_enabled"`
	// Hubs are the PuSH hubs pinged after a public post.
	Hubs []string `yaml:"hubs"`
}

type Delivery struct {
	// BatchSize is the number of recipients handed to one executor unit.
	BatchSize int `yaml:"batch_size"`
	// Interval is the pause between launching consecutive batches.
	Interval time.Duration `yaml:"interval"`
	// Timeout bounds each outbound delivery request.
	Timeout time.Duration `yaml:"timeout"`
	// RetryAttempts bounds how often a queued envelope is re-posted.
	RetryAttempts int `yaml:"retry_attempts"`
	// Concurrency bounds the number of executor units running at once.
	Concurrency int `yaml:"concurrency"`
}

type Resolver struct {
	CacheTTL             time.Duration `yaml:"cache_ttl"`
	XRDTimeout           time.Duration `yaml:"xrd_timeout"`
	MaxPathDepth         int           `yaml:"max_path_depth"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks"`
	DefaultAvatar        string        `yaml:"default_avatar"`
	// RefreshInterval is how old a contact may get before it is re-resolved.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type Liveness struct {
	// ArchiveAfter is how long a contact may stay Suspect before it is archived.
	ArchiveAfter time.Duration `yaml:"archive_after"`
}

type Reconciler struct {
	// Complete disables conversation crawling when false; only the
	// triggering item is stored.
	Complete bool `yaml:"complete"`
	MaxPages int  `yaml:"max_pages"`
}

type Mail struct {
	SMTPAddr string `yaml:"smtp_addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Redis struct {
	// Addr enables the redis backed resolver cache when set.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Workers sets how often each background worker of serve runs.
type Workers struct {
	Retry   time.Duration `yaml:"retry"`
	Refresh time.Duration `yaml:"refresh"`
	Sweep   time.Duration `yaml:"sweep"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Hostname: "localhost",
		BaseURL:  "http://localhost:8080",
		DSN:      "fedinode.db",
		Listen:   ":8080",
		Federation: Federation{
			DiasporaEnabled: true,
			OStatusEnabled:  true,
			MailEnabled:     true,
		},
		Delivery: Delivery{
			BatchSize:     1,
			Timeout:       20 * time.Second,
			RetryAttempts: 10,
			Concurrency:   8,
		},
		Resolver: Resolver{
			CacheTTL:        24 * time.Hour,
			XRDTimeout:      20 * time.Second,
			MaxPathDepth:    4,
			DefaultAvatar:   "/images/person-175.jpg",
			RefreshInterval: 7 * 24 * time.Hour,
		},
		Liveness: Liveness{
			ArchiveAfter: 32 * 24 * time.Hour,
		},
		Reconciler: Reconciler{
			Complete: true,
			MaxPages: 50,
		},
		Workers: Workers{
			Retry:   5 * time.Minute,
			Refresh: time.Hour,
			Sweep:   time.Minute,
		},
	}
}

// Load reads the configuration at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("in config file: %w", err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return c, c.normalise()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("FEDINODE_HOSTNAME", &c.Hostname)
	str("FEDINODE_BASEURL", &c.BaseURL)
	str("FEDINODE_DSN", &c.DSN)
	str("FEDINODE_LISTEN", &c.Listen)
	str("FEDINODE_REDIS_ADDR", &c.Redis.Addr)
	str("FEDINODE_SMTP_ADDR", &c.Mail.SMTPAddr)
	if v, ok := lookup("FEDINODE_HUBS"); ok && v != "" {
		c.Federation.Hubs = strings.Split(v, ",")
	}
	if v, ok := lookup("FEDINODE_BATCH_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FEDINODE_BATCH_SIZE: %w", err)
		}
		c.Delivery.BatchSize = n
	}
	if err := boolean("FEDINODE_DFRN_ONLY", &c.Federation.DFRNOnly); err != nil {
		return err
	}
	return boolean("FEDINODE_ALLOW_PRIVATE_NETWORKS", &c.Resolver.AllowPrivateNetworks)
}

func (c *Config) normalise() error {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid baseurl %q", c.BaseURL)
	}
	if c.Hostname == "" {
		c.Hostname = u.Hostname()
	}
	if c.Delivery.BatchSize < 1 {
		c.Delivery.BatchSize = 1
	}
	if c.Delivery.Concurrency < 1 {
		c.Delivery.Concurrency = 1
	}
	hubs := c.Federation.Hubs[:0]
	for _, h := range c.Federation.Hubs {
		if h = strings.TrimSpace(h); h != "" {
			hubs = append(hubs, h)
		}
	}
	c.Federation.Hubs = hubs
	return nil
}

// LocalHost returns the host name used to recognise URIs minted by this
// node: lower case, without a leading www. and without a port.
func (c *Config) LocalHost() string {
	h := strings.ToLower(c.Hostname)
	h = strings.TrimPrefix(h, "www.")
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	return h
}

// ProfileURL returns the public profile URL of the local user nick.
func (c *Config) ProfileURL(nick string) string {
	return c.BaseURL + "/profile/" + nick
}

// FeedURL returns the public feed URL of the local user nick.
func (c *Config) FeedURL(nick string) string {
	return c.BaseURL + "/feed/" + nick
}

// NotifyURL returns the DFRN inbox of the local user nick.
func (c *Config) NotifyURL(nick string) string {
	return c.BaseURL + "/dfrn_notify/" + nick
}
