package dfrn

import (
	"time"

	"github.com/fedinode/fedinode/models"
)

// NewFeed returns an empty feed published by owner.
func NewFeed(owner *models.Owner, updated time.Time) *Feed {
	return &Feed{
		ID:      owner.Self.Poll,
		Title:   owner.Self.Name,
		Updated: atomTime(updated),
		Author:  ownerPerson(owner),
		Owner:   ownerPerson(owner),
	}
}

func ownerPerson(owner *models.Owner) *Person {
	return &Person{
		Name:   owner.Self.Name,
		URI:    owner.Self.URL,
		Handle: owner.Self.Addr,
		Links:  []Link{{Rel: "avatar", Type: "image/jpeg", Href: owner.Self.Photo}},
	}
}

// AddItems appends an entry for every live item and a tombstone for every
// deleted one.
func (f *Feed) AddItems(items ...*models.Item) {
	for _, item := range items {
		if item.Deleted {
			f.Deleted = append(f.Deleted, &Tombstone{
				Ref:  item.URI,
				When: atomTime(item.UpdatedAt),
			})
			continue
		}
		f.Entries = append(f.Entries, NewEntry(item))
	}
}

// NewEntry returns the feed entry of item.
func NewEntry(item *models.Item) *Entry {
	e := &Entry{
		Author: Person{
			Name:  item.AuthorName,
			URI:   item.AuthorLink,
			Links: []Link{{Rel: "avatar", Type: "image/jpeg", Href: item.AuthorAvatar}},
		},
		ID:         item.URI,
		GUID:       item.GUID,
		Title:      item.Title,
		Published:  atomTime(item.CreatedAt),
		Updated:    atomTime(item.UpdatedAt),
		Content:    Content{Type: "html", Value: item.Body},
		Verb:       item.Verb,
		ObjectType: item.ObjectType,
		App:        item.App,
		Signature:  item.Signature,
	}
	if item.OwnerLink != "" && item.OwnerLink != item.AuthorLink {
		e.Owner = &Person{
			Name:  item.OwnerName,
			URI:   item.OwnerLink,
			Links: []Link{{Rel: "avatar", Type: "image/jpeg", Href: item.OwnerAvatar}},
		}
	}
	if item.Plink != "" {
		e.Links = append(e.Links, Link{Rel: "alternate", Type: "text/html", Href: item.Plink})
	}
	for _, m := range item.Mentions {
		e.Links = append(e.Links, Link{Rel: "mentioned", Href: m})
	}
	if item.ThrParent != "" && item.ThrParent != item.URI {
		e.InReplyTo = &InReplyTo{Ref: item.ThrParent}
	}
	if item.Private {
		e.Private = 1
	}
	if item.ForumMode != models.NotForum {
		e.Forum = int(item.ForumMode)
	}
	return e
}

// NewMailFeed returns a feed carrying a private message from owner.
func NewMailFeed(owner *models.Owner, mail *models.PrivateMail) *Feed {
	f := NewFeed(owner, mail.CreatedAt)
	f.Mail = &Mail{
		Sender:    *ownerPerson(owner),
		ID:        mail.URI,
		InReplyTo: mail.ParentURI,
		SentDate:  atomTime(mail.CreatedAt),
		Subject:   mail.Title,
		Content:   mail.Body,
	}
	return f
}

// NewSuggestFeed returns a feed introducing the suggested contact.
func NewSuggestFeed(owner *models.Owner, s *models.Suggestion) *Feed {
	f := NewFeed(owner, s.CreatedAt)
	f.Suggest = &Suggest{
		URL:     s.URL,
		Name:    s.Name,
		Photo:   s.Photo,
		Request: s.Request,
		Note:    s.Note,
	}
	return f
}

// NewRelocateFeed returns a feed announcing owner's current endpoints.
func NewRelocateFeed(owner *models.Owner, siteKey string) *Feed {
	f := NewFeed(owner, time.Now())
	self := owner.Self
	f.Relocate = &Relocate{
		URL:        self.URL,
		Name:       self.Name,
		Addr:       self.Addr,
		Avatar:     self.Photo,
		Request:    self.Request,
		Confirm:    self.Confirm,
		Notify:     self.Notify,
		Poll:       self.Poll,
		SitePubKey: siteKey,
	}
	return f
}
