// Package salmon implements Magic Envelopes, the signed wrapper used by
// OStatus slaps and Diaspora payloads.
package salmon

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/carlmjohnson/requests"
)

const (
	Namespace   = "http://salmon-protocol.org/ns/magic-env"
	ContentType = "application/magic-envelope+xml"
	Encoding    = "base64url"
	Alg         = "RSA-SHA256"
)

// Envelope is a Magic Envelope.
type Envelope struct {
	XMLName  xml.Name `xml:"env"`
	Data     Data     `xml:"data"`
	Encoding string   `xml:"encoding"`
	Alg      string   `xml:"alg"`
	Sig      []Sig    `xml:"sig"`
}

type Data struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type Sig struct {
	KeyID string `xml:"key_id,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Sign wraps payload in an envelope signed with key.
func Sign(payload []byte, dataType, keyID string, key *rsa.PrivateKey) (*Envelope, error) {
	env := &Envelope{
		Data: Data{
			Type:  dataType,
			Value: base64.URLEncoding.EncodeToString(payload),
		},
		Encoding: Encoding,
		Alg:      Alg,
	}
	hashed := sha256.Sum256([]byte(env.signedText()))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, err
	}
	env.Sig = []Sig{{
		KeyID: keyID,
		Value: base64.URLEncoding.EncodeToString(sig),
	}}
	return env, nil
}

// signedText is the string covered by the signature.
func (e *Envelope) signedText() string {
	enc := base64.URLEncoding.EncodeToString
	return strings.Join([]string{
		compact(e.Data.Value),
		enc([]byte(e.Data.Type)),
		enc([]byte(e.Encoding)),
		enc([]byte(e.Alg)),
	}, ".")
}

// Verify checks the first signature of the envelope against pub.
func (e *Envelope) Verify(pub *rsa.PublicKey) error {
	if len(e.Sig) == 0 {
		return errors.New("salmon: envelope is not signed")
	}
	if e.Alg != Alg {
		return fmt.Errorf("salmon: unsupported algorithm %q", e.Alg)
	}
	sig, err := decode(e.Sig[0].Value)
	if err != nil {
		return fmt.Errorf("salmon: signature: %w", err)
	}
	hashed := sha256.Sum256([]byte(e.signedText()))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], sig)
}

// KeyID returns the key id of the first signature.
func (e *Envelope) KeyID() string {
	if len(e.Sig) == 0 {
		return ""
	}
	return e.Sig[0].KeyID
}

// Payload returns the decoded data of the envelope.
func (e *Envelope) Payload() ([]byte, error) {
	if e.Encoding != Encoding {
		return nil, fmt.Errorf("salmon: unsupported encoding %q", e.Encoding)
	}
	return decode(e.Data.Value)
}

// Marshal returns the XML form of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{
		Name: xml.Name{Local: "me:env"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:me"}, Value: Namespace}},
	}
	el := func(name string, attrs []xml.Attr, value string) error {
		s := xml.StartElement{Name: xml.Name{Local: "me:" + name}, Attr: attrs}
		if err := enc.EncodeToken(s); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(value)); err != nil {
			return err
		}
		return enc.EncodeToken(s.End())
	}
	if err := enc.EncodeToken(start); err != nil {
		return nil, err
	}
	if err := el("data", []xml.Attr{{Name: xml.Name{Local: "type"}, Value: e.Data.Type}}, e.Data.Value); err != nil {
		return nil, err
	}
	if err := el("encoding", nil, e.Encoding); err != nil {
		return nil, err
	}
	if err := el("alg", nil, e.Alg); err != nil {
		return nil, err
	}
	for _, sig := range e.Sig {
		var attrs []xml.Attr
		if sig.KeyID != "" {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "key_id"}, Value: sig.KeyID})
		}
		if err := el("sig", attrs, sig.Value); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse decodes an XML envelope.
func Parse(b []byte) (*Envelope, error) {
	var env Envelope
	if err := xml.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("salmon: %w", err)
	}
	if env.Data.Value == "" {
		return nil, errors.New("salmon: envelope has no data")
	}
	return &env, nil
}

// Deliver posts the envelope to endpoint.
func Deliver(ctx context.Context, client *http.Client, endpoint string, env *Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	return Post(ctx, client, endpoint, body)
}

// Post posts an encoded envelope to endpoint. Any status outside 2xx is an
// error.
func Post(ctx context.Context, client *http.Client, endpoint string, body []byte) error {
	return requests.URL(endpoint).
		Client(client).
		ContentType(ContentType).
		BodyBytes(body).
		CheckStatus(http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent).
		Fetch(ctx)
}

// compact removes the whitespace some implementations fold into the data.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

func decode(s string) ([]byte, error) {
	s = strings.TrimRight(compact(s), "=")
	return base64.RawURLEncoding.DecodeString(s)
}
