package workers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fedinode/fedinode/dfrn"
	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/models/modeltest"
	"github.com/fedinode/fedinode/resolver"
	"github.com/stretchr/testify/require"
)

// peer answers deliveries like a remote node would.
type peer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies map[string][]string
	status int
	down   bool
}

func newPeer(t *testing.T) *peer {
	p := &peer{bodies: make(map[string][]string)}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.bodies[r.URL.Path] = append(p.bodies[r.URL.Path], string(body))
		down, status := p.down, p.status
		p.mu.Unlock()
		switch {
		case down:
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasPrefix(r.URL.Path, "/dfrn_notify/"):
			dfrn.WriteResult(w, status, "")
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *peer) received(path string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodies[path]
}

type mailbox struct {
	from string
	to   []string
	msg  []byte
}

func (m *mailbox) Send(ctx context.Context, from string, to []string, msg []byte) error {
	m.from, m.to, m.msg = from, to, msg
	return nil
}

func TestRetrier(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*models.Env, *models.Owner, *peer, *mailbox, *Retrier) {
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		p := newPeer(t)
		mb := new(mailbox)
		return env, alice, p, mb, NewRetrier(env, p.Client(), mb, nil)
	}
	queue := func(t *testing.T, env *models.Env, uid snowflake.ID, c *models.Contact, endpoint, body string) *models.RetryEntry {
		e := &models.RetryEntry{
			ContactID:   c.ID,
			UID:         uid,
			Protocol:    c.Protocol,
			Endpoint:    endpoint,
			ContentType: "application/octet-stream",
			Body:        []byte(body),
		}
		require.NoError(t, models.NewRetryQueue(env.DB).Add(e))
		return e
	}
	suspect := func(c *models.Contact) {
		ts := time.Now().Add(-time.Hour)
		c.TermDate = &ts
	}
	reload := func(t *testing.T, env *models.Env, c *models.Contact) *models.Contact {
		c, err := models.NewContacts(env.DB).FindByID(c.ID)
		require.NoError(t, err)
		return c
	}
	remaining := func(t *testing.T, env *models.Env) []*models.RetryEntry {
		var entries []*models.RetryEntry
		require.NoError(t, env.DB.Find(&entries).Error)
		return entries
	}

	t.Run("delivers and revives", func(t *testing.T) {
		require := require.New(t)
		env, alice, p, _, r := setup(t)
		bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example", suspect)
		queue(t, env, alice.ID, bob, p.URL+"/dfrn_notify/bob", "data=feed")

		done, failed, err := r.Run(ctx)
		require.NoError(err)
		require.Equal(1, done)
		require.Zero(failed)
		require.Equal([]string{"data=feed"}, p.received("/dfrn_notify/bob"))
		require.Empty(remaining(t, env))
		require.Equal(models.Alive, reload(t, env, bob).Liveness())
	})

	t.Run("a failure is counted and kept", func(t *testing.T) {
		require := require.New(t)
		env, alice, p, _, r := setup(t)
		p.down = true
		bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")
		queue(t, env, alice.ID, bob, p.URL+"/dfrn_notify/bob", "data=feed")

		done, failed, err := r.Run(ctx)
		require.NoError(err)
		require.Zero(done)
		require.Equal(1, failed)

		entries := remaining(t, env)
		require.Len(entries, 1)
		require.EqualValues(1, entries[0].Attempts)
		require.NotEmpty(entries[0].LastResult)
		require.Equal(models.Suspect, reload(t, env, bob).Liveness())
	})

	t.Run("a rejection is dropped", func(t *testing.T) {
		require := require.New(t)
		env, alice, p, _, r := setup(t)
		p.status = 1
		bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example", suspect)
		queue(t, env, alice.ID, bob, p.URL+"/dfrn_notify/bob", "data=feed")

		done, _, err := r.Run(ctx)
		require.NoError(err)
		require.Equal(1, done)
		require.Empty(remaining(t, env))
		require.Equal(models.Alive, reload(t, env, bob).Liveness())
	})

	t.Run("exhausted entries are left for housekeeping", func(t *testing.T) {
		require := require.New(t)
		env, alice, p, _, r := setup(t)
		bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")
		e := queue(t, env, alice.ID, bob, p.URL+"/dfrn_notify/bob", "data=feed")
		require.NoError(env.DB.Model(e).UpdateColumn("attempts", env.Config.Delivery.RetryAttempts).Error)

		done, failed, err := r.Run(ctx)
		require.NoError(err)
		require.Zero(done + failed)
		require.Empty(p.received("/dfrn_notify/bob"))

		n, err := models.NewRetryQueue(env.DB).PurgeExhausted(env.Config.Delivery.RetryAttempts)
		require.NoError(err)
		require.EqualValues(1, n)
	})

	t.Run("archived contacts are dropped", func(t *testing.T) {
		require := require.New(t)
		env, alice, p, _, r := setup(t)
		bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example", func(c *models.Contact) {
			c.Archived = true
		})
		queue(t, env, alice.ID, bob, p.URL+"/dfrn_notify/bob", "data=feed")

		done, _, err := r.Run(ctx)
		require.NoError(err)
		require.Equal(1, done)
		require.Empty(p.received("/dfrn_notify/bob"))
		require.Empty(remaining(t, env))
	})

	t.Run("magic envelopes and slaps", func(t *testing.T) {
		require := require.New(t)
		env, alice, p, _, r := setup(t)
		dee := modeltest.MockContact(t, env.DB, alice.ID, "dee", "pod.example", modeltest.WithProtocol(models.Diaspora))
		frank := modeltest.MockContact(t, env.DB, alice.ID, "frank", "gs.example", modeltest.WithProtocol(models.OStatus))
		queue(t, env, alice.ID, dee, p.URL+"/receive/users/dee", "<me:env/>")
		queue(t, env, alice.ID, frank, p.URL+"/salmon/frank", "<me:env/>")

		done, failed, err := r.Run(ctx)
		require.NoError(err)
		require.Equal(2, done)
		require.Zero(failed)
		require.Len(p.received("/receive/users/dee"), 1)
		require.Len(p.received("/salmon/frank"), 1)
	})

	t.Run("mail", func(t *testing.T) {
		require := require.New(t)
		env, alice, _, mb, r := setup(t)
		mo := modeltest.MockContact(t, env.DB, alice.ID, "mo", "mail.example", modeltest.WithProtocol(models.Mail))
		msg := "From: Alice <alice@local.example>\r\nTo: mo@mail.example\r\nSubject: hi\r\n\r\nhello\r\n"
		queue(t, env, alice.ID, mo, "mailto:mo@mail.example", msg)

		done, _, err := r.Run(ctx)
		require.NoError(err)
		require.Equal(1, done)
		require.Equal("alice@local.example", mb.from)
		require.Equal([]string{"mo@mail.example"}, mb.to)
		require.Equal(msg, string(mb.msg))
	})
}

// refreshes resolves contacts to fixed records.
type refreshes map[string]*resolver.Record

func (r refreshes) Refresh(ctx context.Context, ref string, filter models.Protocol, uid snowflake.ID) *resolver.Record {
	if rec, ok := r[ref]; ok {
		return rec
	}
	return &resolver.Record{Protocol: models.Phantom, URL: ref}
}

func TestRefresher(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")
	gone := modeltest.MockContact(t, env.DB, alice.ID, "gone", "remote.example")
	fresh := modeltest.MockContact(t, env.DB, alice.ID, "fresh", "remote.example", func(c *models.Contact) {
		c.LastRefresh = time.Now()
	})

	r := NewRefresher(env, refreshes{
		bob.URL: {Protocol: models.DFRN, URL: bob.URL, Name: "Robert", Photo: "https://remote.example/new.jpg"},
	})

	n, err := r.Schedule(ctx)
	require.NoError(err)
	require.Equal(2, n)

	// scheduling twice does not duplicate requests
	_, err = r.Schedule(ctx)
	require.NoError(err)

	done, failed, err := r.Run(ctx)
	require.NoError(err)
	require.Equal(1, done)
	require.Equal(1, failed)

	contacts := models.NewContacts(env.DB)
	bob, err = contacts.FindByID(bob.ID)
	require.NoError(err)
	require.Equal("Robert", bob.Name)
	require.Equal("https://remote.example/new.jpg", bob.Photo)
	require.Equal("bob@remote.example", bob.Addr)
	require.False(bob.LastRefresh.IsZero())

	var requests []*models.ContactRefreshRequest
	require.NoError(env.DB.Find(&requests).Error)
	require.Len(requests, 1)
	require.Equal(gone.ID, requests[0].ContactID)
	require.EqualValues(1, requests[0].Attempts)

	fresh, err = contacts.FindByID(fresh.ID)
	require.NoError(err)
	require.Equal("fresh", fresh.Name)
}

type batchCall struct {
	cmd   models.Command
	id    snowflake.ID
	batch []snowflake.ID
}

type executions struct {
	calls []batchCall
}

func (e *executions) Execute(ctx context.Context, cmd models.Command, id snowflake.ID, batch []snowflake.ID) error {
	e.calls = append(e.calls, batchCall{cmd, id, batch})
	return nil
}

func TestSweeper(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	env := modeltest.NewEnv(t)
	tasks := models.NewTasks(env.DB)
	require.NoError(tasks.Enqueue(models.WallNew, 1, 10, 11))
	require.NoError(tasks.Enqueue(models.Drop, 2, 12))

	exec := new(executions)
	s := NewSweeper(env, exec)

	n, err := s.Run(ctx)
	require.NoError(err)
	require.Zero(n)
	require.Empty(exec.calls)

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = s.Run(ctx)
	require.NoError(err)
	require.Equal(3, n)
	require.Equal([]batchCall{
		{models.Drop, 2, []snowflake.ID{12}},
		{models.WallNew, 1, []snowflake.ID{10, 11}},
	}, exec.calls)
}
