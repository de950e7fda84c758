// Package diaspora builds Diaspora federation entities and the signed
// envelopes they travel in.
package diaspora

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"strings"
	"time"
)

// TimeFormat is the timestamp format of entity fields.
const TimeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

type StatusMessage struct {
	XMLName   xml.Name `xml:"status_message"`
	Author    string   `xml:"author"`
	GUID      string   `xml:"guid"`
	CreatedAt string   `xml:"created_at"`
	Public    bool     `xml:"public"`
	Text      string   `xml:"text"`
	Provider  string   `xml:"provider_display_name,omitempty"`
}

// Comment is a relayable reply to a post.
type Comment struct {
	XMLName               xml.Name `xml:"comment"`
	Author                string   `xml:"author"`
	GUID                  string   `xml:"guid"`
	ParentGUID            string   `xml:"parent_guid"`
	Text                  string   `xml:"text"`
	CreatedAt             string   `xml:"created_at"`
	AuthorSignature       string   `xml:"author_signature,omitempty"`
	ParentAuthorSignature string   `xml:"parent_author_signature,omitempty"`
}

func (c *Comment) signedText() string {
	return strings.Join([]string{c.Author, c.GUID, c.ParentGUID, c.Text, c.CreatedAt}, ";")
}

// Like is a relayable reaction to a post.
type Like struct {
	XMLName               xml.Name `xml:"like"`
	Author                string   `xml:"author"`
	GUID                  string   `xml:"guid"`
	ParentGUID            string   `xml:"parent_guid"`
	ParentType            string   `xml:"parent_type"`
	Positive              bool     `xml:"positive"`
	AuthorSignature       string   `xml:"author_signature,omitempty"`
	ParentAuthorSignature string   `xml:"parent_author_signature,omitempty"`
}

func (l *Like) signedText() string {
	positive := "false"
	if l.Positive {
		positive = "true"
	}
	return strings.Join([]string{l.Author, l.GUID, l.ParentGUID, l.ParentType, positive}, ";")
}

type Retraction struct {
	XMLName    xml.Name `xml:"retraction"`
	Author     string   `xml:"author"`
	TargetGUID string   `xml:"target_guid"`
	TargetType string   `xml:"target_type"`
}

type Message struct {
	XMLName          xml.Name `xml:"message"`
	Author           string   `xml:"author"`
	GUID             string   `xml:"guid"`
	ConversationGUID string   `xml:"conversation_guid"`
	Text             string   `xml:"text"`
	CreatedAt        string   `xml:"created_at"`
}

// Contact announces the relationship the author wants with the recipient.
type Contact struct {
	XMLName   xml.Name `xml:"contact"`
	Author    string   `xml:"author"`
	Recipient string   `xml:"recipient"`
	Following bool     `xml:"following"`
	Sharing   bool     `xml:"sharing"`
}

type Profile struct {
	Author     string `xml:"author"`
	FullName   string `xml:"full_name"`
	ImageURL   string `xml:"image_url"`
	Searchable bool   `xml:"searchable"`
}

// AccountMigration announces that the author moved to a new address.
type AccountMigration struct {
	XMLName   xml.Name `xml:"account_migration"`
	Author    string   `xml:"author"`
	Profile   Profile  `xml:"profile"`
	Signature string   `xml:"signature"`
}

// Relayable entities carry the signature of their author so that the thread
// owner can forward them.
type Relayable interface {
	signedText() string
}

// Sign returns the signature of r's fields by key.
func Sign(r Relayable, key *rsa.PrivateKey) (string, error) {
	hashed := sha256.Sum256([]byte(r.signedText()))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a signature produced by Sign.
func Verify(r Relayable, sig string, pub *rsa.PublicKey) error {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return err
	}
	hashed := sha256.Sum256([]byte(r.signedText()))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], raw)
}
