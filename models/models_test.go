package models_test

import (
	"testing"
	"time"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/models/modeltest"
	"github.com/stretchr/testify/require"
)

func TestItemsStore(t *testing.T) {
	t.Run("top level item is its own parent", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")

		item := modeltest.MockItem(t, env.DB, alice, "hello")
		require.True(item.IsTopLevel())
		require.Equal(item.URI, item.ParentURI)
		require.Equal(item.URI, item.ThrParent)
	})

	t.Run("storing the same uri twice returns the first copy", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		item := modeltest.MockItem(t, env.DB, alice, "hello")

		again, created, err := models.NewItems(env.DB).Store(&models.Item{
			UID:  alice.ID,
			URI:  item.URI,
			Body: "changed",
		})
		require.NoError(err)
		require.False(created)
		require.Equal(item.ID, again.ID)
		require.Equal("hello", again.Body)
	})

	t.Run("replies to replies join the root thread", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")

		root := modeltest.MockItem(t, env.DB, alice, "root", func(i *models.Item) {
			i.AllowCID = models.FormatACL(bob.ID)
			i.Private = true
		})
		reply := modeltest.MockItem(t, env.DB, alice, "reply", modeltest.ReplyTo(root), modeltest.From(bob))
		nested := modeltest.MockItem(t, env.DB, alice, "nested", modeltest.ReplyTo(reply))

		require.Equal(root.ID, reply.ParentID)
		require.Equal(root.ID, nested.ParentID)
		require.Equal(root.URI, nested.ParentURI)
		require.Equal(reply.URI, nested.ThrParent)
		require.True(nested.Private)
		require.Equal(root.AllowCID, nested.AllowCID)

		thread, err := models.NewItems(env.DB).Thread(root.ID)
		require.NoError(err)
		require.Len(thread, 3)
		require.Equal(root.ID, thread[0].ID)

		conversants, err := models.NewItems(env.DB).Conversants(root.ID)
		require.NoError(err)
		require.ElementsMatch([]snowflake.ID{alice.Self.ID, bob.ID}, conversants)
	})

	t.Run("unknown parent starts a thread", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")

		item := modeltest.MockItem(t, env.DB, alice, "orphan", func(i *models.Item) {
			i.ParentURI = "https://remote.example/item/missing"
		})
		require.True(item.IsTopLevel())
		require.Equal(item.URI, item.ParentURI)
		require.Equal("https://remote.example/item/missing", item.ThrParent)
	})

	t.Run("reparent moves the whole thread", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		items := models.NewItems(env.DB)

		root := modeltest.MockItem(t, env.DB, alice, "root")
		shadow := modeltest.MockItem(t, env.DB, alice, "shadow")
		modeltest.MockItem(t, env.DB, alice, "reply", modeltest.ReplyTo(shadow))

		n, err := items.Reparent(shadow.ID, root)
		require.NoError(err)
		require.EqualValues(2, n)

		thread, err := items.Thread(root.ID)
		require.NoError(err)
		require.Len(thread, 3)
		moved, err := items.FindByID(shadow.ID)
		require.NoError(err)
		require.Equal(root.ID, moved.ParentID)
		require.Equal(root.URI, moved.ThrParent)

		n, err = items.Reparent(root.ID, root)
		require.NoError(err)
		require.Zero(n)
	})
}

func TestTasks(t *testing.T) {
	t.Run("enqueue is idempotent", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		tasks := models.NewTasks(env.DB)

		require.NoError(tasks.Enqueue(models.WallNew, 1, 10, 11))
		require.NoError(tasks.Enqueue(models.WallNew, 1, 10, 11, 12))

		pending, err := tasks.Pending(models.WallNew, 1)
		require.NoError(err)
		require.Equal([]snowflake.ID{10, 11, 12}, pending)
	})

	t.Run("a task can be claimed once", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		tasks := models.NewTasks(env.DB)
		require.NoError(tasks.Enqueue(models.CommentNew, 2, 20))

		ok, err := tasks.Claim(models.CommentNew, 2, 20)
		require.NoError(err)
		require.True(ok)

		ok, err = tasks.Claim(models.CommentNew, 2, 20)
		require.NoError(err)
		require.False(ok)

		ok, err = tasks.Claim(models.WallNew, 2, 20)
		require.NoError(err)
		require.False(ok)
	})

	t.Run("abandoned", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		tasks := models.NewTasks(env.DB)
		require.NoError(tasks.Enqueue(models.Like, 3, 30))

		old, err := tasks.Abandoned(time.Now().Add(-time.Hour), 10)
		require.NoError(err)
		require.Empty(old)

		old, err = tasks.Abandoned(time.Now().Add(time.Minute), 10)
		require.NoError(err)
		require.Len(old, 1)
		require.Equal(models.Like, old[0].Command)
	})
}

func TestGroupsExpand(t *testing.T) {
	require := require.New(t)
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	x := modeltest.MockContact(t, env.DB, alice.ID, "x", "remote.example")
	y := modeltest.MockContact(t, env.DB, alice.ID, "y", "remote.example")
	z := modeltest.MockContact(t, env.DB, alice.ID, "z", "remote.example", func(c *models.Contact) {
		c.Archived = true
	})
	g := modeltest.MockGroup(t, env.DB, alice.ID, "friends", x, y, z)
	h := modeltest.MockGroup(t, env.DB, alice.ID, "others", y)

	groups := models.NewGroups(env.DB)
	ids, err := groups.Expand(alice.ID, []snowflake.ID{g.ID, h.ID}, false)
	require.NoError(err)
	require.ElementsMatch([]snowflake.ID{x.ID, y.ID, z.ID}, ids)

	ids, err = groups.Expand(alice.ID, []snowflake.ID{g.ID}, true)
	require.NoError(err)
	require.ElementsMatch([]snowflake.ID{x.ID, y.ID}, ids)

	// groups of other users never expand
	ids, err = groups.Expand(x.ID, []snowflake.ID{g.ID}, false)
	require.NoError(err)
	require.Empty(ids)
}

func TestContacts(t *testing.T) {
	t.Run("mark for death persists the transition", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")
		contacts := models.NewContacts(env.DB)

		now := time.Now()
		require.NoError(contacts.MarkForDeath(bob, now, 0))
		got, err := contacts.FindByID(bob.ID)
		require.NoError(err)
		require.Equal(models.Suspect, got.Liveness())

		require.NoError(contacts.MarkForDeath(got, now.Add(models.DefaultArchiveAfter), 0))
		got, err = contacts.FindByID(bob.ID)
		require.NoError(err)
		require.Equal(models.Archived, got.Liveness())

		require.NoError(contacts.Unmark(got))
		got, err = contacts.FindByID(bob.ID)
		require.NoError(err)
		require.Equal(models.Alive, got.Liveness())
	})

	t.Run("shared contacts are created once", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		contacts := models.NewContacts(env.DB)

		first, err := contacts.FindOrCreateShared(&models.Contact{URL: "https://remote.example/bob", Protocol: models.OStatus, Name: "Bob"})
		require.NoError(err)
		second, err := contacts.FindOrCreateShared(&models.Contact{URL: "http://remote.example/bob/", Protocol: models.OStatus, Name: "Robert"})
		require.NoError(err)
		require.Equal(first.ID, second.ID)
		require.Equal("Bob", second.Name)
		require.Zero(second.UID)

		require.NoError(contacts.UpdateShared(&models.Contact{URL: "https://remote.example/bob", Name: "Robert", Nick: "bob"}))
		got, err := contacts.FindByID(first.ID)
		require.NoError(err)
		require.Equal("Robert", got.Name)
	})

	t.Run("a partial lookup keeps the cached identity", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		contacts := models.NewContacts(env.DB)

		shared, err := contacts.FindOrCreateShared(&models.Contact{
			URL:      "https://remote.example/profile/dora",
			Protocol: models.DFRN,
			Name:     "Dora",
			Nick:     "dora",
			Notify:   "https://remote.example/dfrn_notify/dora",
			Poll:     "https://remote.example/dfrn_poll/dora",
		})
		require.NoError(err)

		require.NoError(contacts.UpdateShared(&models.Contact{URL: "https://remote.example/profile/dora", Name: "Dora Explorer"}))
		got, err := contacts.FindByID(shared.ID)
		require.NoError(err)
		require.Equal("Dora Explorer", got.Name)
		require.Equal("dora", got.Nick)
		require.Equal("https://remote.example/dfrn_notify/dora", got.Notify)
		require.Equal("https://remote.example/dfrn_poll/dora", got.Poll)
	})

	t.Run("notify endpoint prefers the user's contact", func(t *testing.T) {
		require := require.New(t)
		env := modeltest.NewEnv(t)
		alice := modeltest.MockUser(t, env, "alice")
		contacts := models.NewContacts(env.DB)

		_, err := contacts.FindOrCreateShared(&models.Contact{URL: "https://remote.example/profile/bob", Notify: "https://remote.example/shared"})
		require.NoError(err)
		notify, ok := contacts.FindNotify(alice.ID, "https://remote.example/profile/bob")
		require.True(ok)
		require.Equal("https://remote.example/shared", notify)

		modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")
		notify, ok = contacts.FindNotify(alice.ID, "https://remote.example/profile/bob")
		require.True(ok)
		require.Equal("https://remote.example/dfrn_notify/bob", notify)

		_, ok = contacts.FindNotify(alice.ID, "https://remote.example/profile/nobody")
		require.False(ok)
	})
}

func TestCache(t *testing.T) {
	require := require.New(t)
	env := modeltest.NewEnv(t)
	cache := models.NewCache(env.DB)

	_, ok, err := cache.Get("k")
	require.NoError(err)
	require.False(ok)

	require.NoError(cache.Set("k", []byte("v1"), time.Hour))
	require.NoError(cache.Set("k", []byte("v2"), time.Hour))
	v, ok, err := cache.Get("k")
	require.NoError(err)
	require.True(ok)
	require.Equal([]byte("v2"), v)

	require.NoError(cache.Set("gone", []byte("x"), -time.Second))
	_, ok, err = cache.Get("gone")
	require.NoError(err)
	require.False(ok)

	n, err := cache.Purge()
	require.NoError(err)
	require.EqualValues(1, n)
}

func TestConversations(t *testing.T) {
	require := require.New(t)
	env := modeltest.NewEnv(t)
	convs := models.NewConversations(env.DB)
	const uri = "https://status.example/conversation/7"

	require.NoError(convs.Set(1, uri, 10))
	require.NoError(convs.Link(1, uri, 11))
	link, err := convs.Find(1, uri)
	require.NoError(err)
	require.Equal(snowflake.ID(10), link.ItemID)

	require.NoError(convs.Set(1, uri, 12))
	link, err = convs.Find(1, uri)
	require.NoError(err)
	require.Equal(snowflake.ID(12), link.ItemID)

	require.NoError(convs.Unlink(12))
	_, err = convs.Find(1, uri)
	require.True(models.IsNotFound(err))
}

func TestRetryQueuePurge(t *testing.T) {
	require := require.New(t)
	env := modeltest.NewEnv(t)
	alice := modeltest.MockUser(t, env, "alice")
	bob := modeltest.MockContact(t, env.DB, alice.ID, "bob", "remote.example")
	carol := modeltest.MockContact(t, env.DB, alice.ID, "carol", "other.example")
	q := models.NewRetryQueue(env.DB)

	entry := func(c *models.Contact, attempts uint32) {
		e := &models.RetryEntry{
			ContactID:   c.ID,
			UID:         alice.ID,
			Protocol:    models.DFRN,
			Endpoint:    c.Notify,
			ContentType: "application/x-www-form-urlencoded",
			Body:        []byte("data=x"),
		}
		e.Attempts = attempts
		require.NoError(q.Add(e))
	}
	entry(bob, 0)
	entry(carol, 0)
	entry(carol, 9)

	require.NoError(env.DB.Model(bob).UpdateColumn("archived", true).Error)
	n, err := q.PurgeArchived()
	require.NoError(err)
	require.EqualValues(1, n)

	n, err = q.PurgeExhausted(5)
	require.NoError(err)
	require.EqualValues(1, n)

	delayed, err := q.RecentlyDelayed(carol.ID, time.Now().Add(-time.Minute))
	require.NoError(err)
	require.True(delayed)
}
