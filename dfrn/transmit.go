package dfrn

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"

	"github.com/carlmjohnson/requests"
	"github.com/fedinode/fedinode/internal/httpsig"
	"github.com/fedinode/fedinode/models"
	"github.com/gorilla/schema"
)

// FormContentType is the content type of a DFRN notification.
const FormContentType = "application/x-www-form-urlencoded"

// Form is the body of a DFRN notification.
type Form struct {
	// Data is the DFRN feed.
	Data string `schema:"data"`
	// Dissolve asks the recipient to drop the relationship.
	Dissolve int `schema:"dissolve"`
	// Perm is "rw" when the recipient may post to the sender's wall.
	Perm string `schema:"perm"`
}

// Encode returns the urlencoded form.
func (f *Form) Encode() []byte {
	v := url.Values{}
	v.Set("data", f.Data)
	if f.Dissolve != 0 {
		v.Set("dissolve", "1")
	}
	if f.Perm != "" {
		v.Set("perm", f.Perm)
	}
	return []byte(v.Encode())
}

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// ParseForm decodes an urlencoded notification.
func ParseForm(body []byte) (*Form, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("dfrn: %w", err)
	}
	return DecodeForm(values)
}

// DecodeForm decodes the values of a notification.
func DecodeForm(values url.Values) (*Form, error) {
	var f Form
	if err := decoder.Decode(&f, values); err != nil {
		return nil, fmt.Errorf("dfrn: %w", err)
	}
	if f.Data == "" && f.Dissolve == 0 {
		return nil, fmt.Errorf("dfrn: empty notification")
	}
	return &f, nil
}

// NewForm wraps the feed for delivery to contact.
func NewForm(feed []byte, contact *models.Contact) *Form {
	f := &Form{
		Data: string(feed),
		Perm: "r",
	}
	if contact.Writable {
		f.Perm = "rw"
	}
	return f
}

// DissolveForm returns the notification telling the contact the
// relationship has ended.
func DissolveForm() *Form {
	return &Form{Dissolve: 1}
}

// Result is the reply of a DFRN notify endpoint. A zero status is success.
type Result struct {
	XMLName xml.Name `xml:"result"`
	Status  int      `xml:"status"`
	Message string   `xml:"message"`
}

// StatusError is returned when the remote node rejects a notification.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dfrn: remote status %d: %s", e.Status, e.Message)
}

// Post delivers an encoded notification to endpoint, signed with owner's key.
func Post(ctx context.Context, client *http.Client, owner *models.Owner, endpoint string, body []byte) error {
	key, err := owner.PrivKey()
	if err != nil {
		return fmt.Errorf("dfrn: owner key: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	var buf bytes.Buffer
	err = requests.URL(endpoint).
		Client(client).
		Transport(httpsig.Transport(owner.KeyID(), key, body, client.Transport)).
		ContentType(FormContentType).
		Accept("application/xml").
		BodyBytes(body).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return err
	}
	var res Result
	if err := xml.Unmarshal(buf.Bytes(), &res); err != nil {
		return fmt.Errorf("dfrn: unreadable reply from %s: %w", endpoint, err)
	}
	if res.Status != 0 {
		return &StatusError{Status: res.Status, Message: res.Message}
	}
	return nil
}

// WriteResult writes the reply of a notify endpoint.
func WriteResult(w http.ResponseWriter, status int, message string) error {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	b, err := xml.Marshal(&Result{Status: status, Message: message})
	if err != nil {
		return err
	}
	_, err = w.Write(append([]byte(xml.Header), b...))
	return err
}
