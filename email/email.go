// Package email renders items as RFC 822 messages for contacts reached
// through a mail gateway.
package email

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/fedinode/fedinode/models"
	"github.com/microcosm-cc/bluemonday"
)

// Message is an outgoing e-mail.
type Message struct {
	From       *mail.Address
	Sender     string
	To         string
	Subject    string
	MessageID  string
	InReplyTo  string
	References []string
	Date       time.Time
	HTML       string
}

// MsgID returns the message id of the item with the given URI. Local item
// URIs of the form urn:X-dfrn:host:uid:guid map to a stable id on host.
func MsgID(uri string) string {
	if strings.Contains(uri, "@") {
		return strings.Trim(uri, "<>")
	}
	if parts := strings.Split(uri, ":"); len(parts) == 5 && strings.EqualFold(parts[0], "urn") {
		return "urn." + strings.Join(parts[1:], ".") + "@" + parts[2]
	}
	host := "localhost"
	if u, err := url.Parse(uri); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	sum := sha1.Sum([]byte(uri))
	return hex.EncodeToString(sum[:]) + "@" + host
}

// Compose returns the message delivering item to a mail contact.
//
// The owner's real address is only revealed to friends who are not
// blocked; everybody else sees noreply@hostname. threadTitle is used as
// the subject of replies without a title of their own.
func Compose(owner *models.Owner, contact *models.Contact, acct *models.MailAccount, item *models.Item, threadTitle, hostname string) *Message {
	m := &Message{
		To:        contact.Addr,
		MessageID: MsgID(item.URI),
		Date:      item.CreatedAt,
		HTML:      item.Body,
	}
	if contact.Rel == models.Friend && !contact.Blocked {
		m.From = &mail.Address{Name: owner.Name, Address: owner.Email}
		if acct != nil && acct.ReplyTo != "" {
			m.From.Address = acct.ReplyTo
			m.Sender = owner.Email
		}
	} else {
		m.From = &mail.Address{Name: owner.Name, Address: "noreply@" + hostname}
	}

	subject := item.Title
	if item.URI != item.ParentURI {
		m.References = []string{MsgID(item.ParentURI)}
		if item.ThrParent != "" && item.ThrParent != item.ParentURI {
			m.References = append(m.References, MsgID(item.ThrParent))
		}
		m.InReplyTo = m.References[len(m.References)-1]
		if subject == "" {
			subject = threadTitle
		}
		if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
			subject = "Re: " + subject
		}
	}
	if subject == "" {
		subject = "(no subject)"
	}
	m.Subject = subject
	return m
}

// Bytes renders the message with a plain text and an HTML part.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	h("From", m.From.String())
	if m.Sender != "" {
		h("Sender", m.Sender)
	}
	h("To", m.To)
	h("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	h("Date", m.Date.Format(time.RFC1123Z))
	h("Message-Id", "<"+m.MessageID+">")
	if len(m.References) > 0 {
		refs := make([]string, len(m.References))
		for i, r := range m.References {
			refs[i] = "<" + r + ">"
		}
		h("References", strings.Join(refs, " "))
	}
	if m.InReplyTo != "" {
		h("In-Reply-To", "<"+m.InReplyTo+">")
	}
	h("MIME-Version", "1.0")
	h("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	parts := []struct {
		typ, body string
	}{
		{"text/plain; charset=utf-8", PlainText(m.HTML)},
		{"text/html; charset=utf-8", m.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.typ},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EnvelopeFrom returns the address of the From header of a rendered message.
func EnvelopeFrom(msg []byte) (string, error) {
	m, err := mail.ReadMessage(bytes.NewReader(msg))
	if err != nil {
		return "", fmt.Errorf("email: %w", err)
	}
	from, err := mail.ParseAddress(m.Header.Get("From"))
	if err != nil {
		return "", fmt.Errorf("email: from: %w", err)
	}
	return from.Address, nil
}

var strict = bluemonday.StrictPolicy()

// PlainText strips all markup from an HTML body.
func PlainText(html string) string {
	s := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n").Replace(html)
	return strings.TrimSpace(strict.Sanitize(s))
}

// Sender transmits rendered messages.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTP sends mail through an SMTP gateway.
type SMTP struct {
	Addr     string
	Username string
	Password string
}

func (s *SMTP) Send(ctx context.Context, from string, to []string, msg []byte) error {
	if s.Addr == "" {
		return fmt.Errorf("email: no smtp gateway configured")
	}
	var auth smtp.Auth
	if s.Username != "" {
		host, _, _ := strings.Cut(s.Addr, ":")
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	errc := make(chan error, 1)
	go func() {
		errc <- smtp.SendMail(s.Addr, auth, from, to, msg)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
