// Package feed serves the public Atom feed of local users, which feed and
// OStatus followers poll after a hub ping.
package feed

import (
	"cmp"
	"errors"
	"net/http"

	"github.com/fedinode/fedinode/email"
	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/models"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/feeds"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type params struct {
	Limit int `schema:"limit"`
}

// Show writes the Atom feed of the local user named by the nick URL
// parameter.
func Show(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	var p params
	if err := httpx.Params(r, &p); err != nil {
		return err
	}
	switch {
	case p.Limit <= 0:
		p.Limit = defaultLimit
	case p.Limit > maxLimit:
		p.Limit = maxLimit
	}

	db := env.DB.WithContext(r.Context())
	users := models.NewUsers(db)
	nick := chi.URLParam(r, "nick")
	user, err := users.FindByNickname(nick)
	switch {
	case models.IsNotFound(err):
		return httpx.Error(http.StatusNotFound, errors.New("no such user: "+nick))
	case err != nil:
		return err
	}
	owner, err := users.FindOwner(user.ID)
	if err != nil {
		return err
	}
	items, err := models.NewItems(db).PublicWall(owner.ID, p.Limit)
	if err != nil {
		return err
	}

	f := New(owner, items)
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	return f.WriteAtom(w)
}

// New returns the feed of owner's public posts.
func New(owner *models.Owner, items []*models.Item) *feeds.Feed {
	self := owner.Self
	f := &feeds.Feed{
		Id:          self.URL,
		Title:       self.Name,
		Link:        &feeds.Link{Href: self.URL, Rel: "alternate", Type: "text/html"},
		Description: "Public posts of " + self.Addr,
		Author:      &feeds.Author{Name: self.Name},
		Image:       &feeds.Image{Url: self.Photo, Title: self.Name, Link: self.URL},
		Created:     owner.CreatedAt,
		Updated:     owner.CreatedAt,
	}
	for _, item := range items {
		if item.UpdatedAt.After(f.Updated) {
			f.Updated = item.UpdatedAt
		}
		title := item.Title
		if title == "" {
			title = excerpt(email.PlainText(item.Body), 80)
		}
		f.Items = append(f.Items, &feeds.Item{
			Id:          item.URI,
			Title:       title,
			Link:        &feeds.Link{Href: cmp.Or(item.Plink, item.URI), Rel: "alternate", Type: "text/html"},
			Author:      &feeds.Author{Name: item.AuthorName},
			Description: email.PlainText(item.Body),
			Content:     item.Body,
			Created:     item.CreatedAt,
			Updated:     item.UpdatedAt,
		})
	}
	return f
}

// excerpt truncates s to at most n runes.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
