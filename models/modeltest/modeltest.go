// Package modeltest provides database fixtures for tests.
package modeltest

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/fedinode/fedinode/internal/config"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err)

	sqlDB, err := db.DB()
	require.NoError(err)
	// a single connection keeps the shared cache free of table locks
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(db.AutoMigrate(models.AllTables()...))

	// enable foreign key constraints
	require.NoError(db.Exec("PRAGMA foreign_keys = ON").Error)
	return db
}

// Config returns the configuration of the node under test, local.example.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Hostname = "local.example"
	cfg.BaseURL = "https://local.example"
	cfg.Resolver.AllowPrivateNetworks = true
	return cfg
}

// NewEnv returns an Env backed by a fresh database.
func NewEnv(t *testing.T) *models.Env {
	t.Helper()
	return &models.Env{
		DB:     NewDB(t),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: Config(),
	}
}

// MockUser creates a local user and their Self contact.
func MockUser(t *testing.T, env *models.Env, nick string) *models.Owner {
	t.Helper()
	owner, err := models.NewUsers(env.DB).Create(env.Config, nick, nick, nick+"@"+env.Config.Hostname)
	require.NoError(t, err)
	return owner
}

// WithProtocol sets the protocol of a contact.
func WithProtocol(p models.Protocol) func(*models.Contact) {
	return func(c *models.Contact) {
		c.Protocol = p
	}
}

// WithRel sets the relationship of a contact.
func WithRel(rel models.Relationship) func(*models.Contact) {
	return func(c *models.Contact) {
		c.Rel = rel
	}
}

// MockContact creates a contact of uid for the remote actor name at domain.
// Contacts default to DFRN friends with populated endpoints.
func MockContact(t *testing.T, db *gorm.DB, uid snowflake.ID, name, domain string, opts ...func(*models.Contact)) *models.Contact {
	t.Helper()
	base := "https://" + domain
	c := &models.Contact{
		UID:      uid,
		URL:      base + "/profile/" + name,
		Addr:     name + "@" + domain,
		Protocol: models.DFRN,
		Name:     name,
		Nick:     name,
		Photo:    base + "/photo/" + name + ".jpg",
		Notify:   base + "/dfrn_notify/" + name,
		Poll:     base + "/dfrn_poll/" + name,
		Request:  base + "/dfrn_request/" + name,
		Confirm:  base + "/dfrn_confirm/" + name,
		Batch:    base + "/receive/public",
		GUID:     uuid.NewString(),
		BaseURL:  base,
		Rel:      models.Friend,
		Writable: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

// MockItem creates a top-level wall post by owner. Options run before the
// item is stored.
func MockItem(t *testing.T, db *gorm.DB, owner *models.Owner, body string, opts ...func(*models.Item)) *models.Item {
	t.Helper()
	id := snowflake.Now()
	host := strings.TrimPrefix(strings.TrimPrefix(owner.Self.BaseURL, "https://"), "http://")
	item := &models.Item{
		ID:         id,
		UID:        owner.ID,
		ContactID:  owner.Self.ID,
		URI:        fmt.Sprintf("urn:X-dfrn:%s:%d:%d", host, owner.ID, id),
		Plink:      fmt.Sprintf("%s/display/%d", owner.Self.BaseURL, id),
		AuthorLink: owner.Self.URL,
		AuthorName: owner.Self.Name,
		OwnerLink:  owner.Self.URL,
		OwnerName:  owner.Self.Name,
		Body:       body,
		Verb:       models.VerbPost,
		ObjectType: models.ObjectNote,
		Wall:       true,
		Origin:     true,
		Network:    models.DFRN,
	}
	for _, opt := range opts {
		opt(item)
	}
	stored, _, err := models.NewItems(db).Store(item)
	require.NoError(t, err)
	return stored
}

// ReplyTo makes the item a comment on parent.
func ReplyTo(parent *models.Item) func(*models.Item) {
	return func(i *models.Item) {
		i.ParentURI = parent.URI
		i.ThrParent = parent.URI
		i.Verb = models.VerbPost
		i.ObjectType = models.ObjectComment
		i.Wall = false
	}
}

// From marks the item as received from the remote contact c.
func From(c *models.Contact) func(*models.Item) {
	return func(i *models.Item) {
		i.ContactID = c.ID
		i.AuthorLink = c.URL
		i.AuthorName = c.Name
		i.Origin = false
		i.Network = c.Protocol
		i.URI = fmt.Sprintf("%s/item/%d", c.BaseURL, i.ID)
	}
}

// MockGroup creates a group of uid holding the given contacts.
func MockGroup(t *testing.T, db *gorm.DB, uid snowflake.ID, name string, members ...*models.Contact) *models.Group {
	t.Helper()
	g := &models.Group{
		UID:  uid,
		Name: name,
	}
	for _, m := range members {
		g.Members = append(g.Members, &models.GroupMember{ContactID: m.ID})
	}
	require.NoError(t, db.Create(g).Error)
	return g
}
