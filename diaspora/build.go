package diaspora

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/fedinode/fedinode/models"
	"github.com/fedinode/fedinode/salmon"
)

// ContentType is the content type of a Diaspora payload.
const ContentType = salmon.ContentType

// NewStatusMessage returns the entity announcing a top-level post.
func NewStatusMessage(author string, item *models.Item) *StatusMessage {
	return &StatusMessage{
		Author:    author,
		GUID:      item.GUID,
		CreatedAt: formatTime(item.CreatedAt),
		Public:    item.IsPublic(),
		Text:      body(item),
		Provider:  item.App,
	}
}

// NewRelayable returns the comment or like entity of the reply item.
func NewRelayable(author string, item *models.Item, parentGUID string) Relayable {
	if item.HasVerb(models.VerbLike, models.VerbFavorite) {
		return &Like{
			Author:     author,
			GUID:       item.GUID,
			ParentGUID: parentGUID,
			ParentType: "Post",
			Positive:   true,
		}
	}
	return &Comment{
		Author:     author,
		GUID:       item.GUID,
		ParentGUID: parentGUID,
		Text:       body(item),
		CreatedAt:  formatTime(item.CreatedAt),
	}
}

// SetSignatures sets the signatures of a relayable entity.
func SetSignatures(r Relayable, author, parent string) {
	switch r := r.(type) {
	case *Comment:
		r.AuthorSignature, r.ParentAuthorSignature = author, parent
	case *Like:
		r.AuthorSignature, r.ParentAuthorSignature = author, parent
	}
}

// NewRetraction returns the entity withdrawing item.
func NewRetraction(author string, item *models.Item) *Retraction {
	typ := "Post"
	switch {
	case item.IsTopLevel():
	case item.HasVerb(models.VerbLike, models.VerbFavorite):
		typ = "Like"
	default:
		typ = "Comment"
	}
	return &Retraction{
		Author:     author,
		TargetGUID: item.GUID,
		TargetType: typ,
	}
}

// NewMessage returns the entity of a private message.
func NewMessage(author string, mail *models.PrivateMail) *Message {
	return &Message{
		Author:           author,
		GUID:             mail.GUID,
		ConversationGUID: mail.ConvGUID,
		Text:             mail.Body,
		CreatedAt:        formatTime(mail.CreatedAt),
	}
}

// NewContactRetraction returns the entity ending the relationship between
// author and recipient.
func NewContactRetraction(author, recipient string) *Contact {
	return &Contact{
		Author:    author,
		Recipient: recipient,
	}
}

// NewAccountMigration returns the entity announcing owner's current profile.
func NewAccountMigration(owner *models.Owner, key *rsa.PrivateKey) (*AccountMigration, error) {
	m := &AccountMigration{
		Author: owner.Addr(),
		Profile: Profile{
			Author:     owner.Addr(),
			FullName:   owner.Self.Name,
			ImageURL:   owner.Self.Photo,
			Searchable: true,
		},
	}
	sig, err := Sign(migrationText{m}, key)
	if err != nil {
		return nil, err
	}
	m.Signature = sig
	return m, nil
}

type migrationText struct {
	*AccountMigration
}

func (m migrationText) signedText() string {
	return "AccountMigration:" + m.Author + ":" + m.Profile.Author
}

func body(item *models.Item) string {
	if item.Title == "" {
		return item.Body
	}
	return "### " + item.Title + "\n\n" + item.Body
}

// Envelope marshals entity and wraps it in a magic envelope signed by author.
func Envelope(entity any, author string, key *rsa.PrivateKey) ([]byte, error) {
	payload, err := xml.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("diaspora: %w", err)
	}
	keyID := base64.URLEncoding.EncodeToString([]byte(author))
	env, err := salmon.Sign(payload, "application/xml", keyID, key)
	if err != nil {
		return nil, err
	}
	return env.Marshal()
}

// Open verifies envelope against pub and returns its payload.
func Open(envelope []byte, pub *rsa.PublicKey) ([]byte, error) {
	env, err := salmon.Parse(envelope)
	if err != nil {
		return nil, err
	}
	if err := env.Verify(pub); err != nil {
		return nil, err
	}
	return env.Payload()
}

// Post delivers an envelope to a private or public receive endpoint.
func Post(ctx context.Context, client *http.Client, endpoint string, envelope []byte) error {
	return salmon.Post(ctx, client, endpoint, envelope)
}
