package dfrn

import (
	"crypto"
	"fmt"
	"io"
	"net/http"
	"strings"

	icrypto "github.com/fedinode/fedinode/internal/crypto"
	"github.com/fedinode/fedinode/internal/httpsig"
	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/models"
	"github.com/go-chi/chi/v5"
)

// Result statuses written by Notify.
const (
	StatusOK       = 0
	StatusRejected = 1
	// StatusUnknown is returned when the sender is not a contact of the
	// recipient.
	StatusUnknown = 3
)

const maxNotifySize = 8 << 20

// An Inbox receives the DFRN notifications of local users.
type Inbox struct {
	// Relay, if set, forwards replies to local threads to the thread's
	// other participants.
	Relay Relayer
}

// Notify is the notify endpoint of the local user named by the nick URL
// parameter. The request must be signed by a contact of the user.
func (in *Inbox) Notify(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	if typ := httpx.MediaType(r); typ != FormContentType {
		return httpx.Error(http.StatusUnsupportedMediaType, fmt.Errorf("unsupported media type: %q", typ))
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotifySize))
	if err != nil {
		return err
	}
	ctx := r.Context()
	db := env.DB.WithContext(ctx)
	users := models.NewUsers(db)
	user, err := users.FindByNickname(chi.URLParam(r, "nick"))
	switch {
	case models.IsNotFound(err):
		return WriteResult(w, StatusUnknown, "no such user")
	case err != nil:
		return err
	}
	owner, err := users.FindOwner(user.ID)
	if err != nil {
		return err
	}

	senderURL, _, _ := strings.Cut(httpsig.KeyID(r), "#")
	sender, err := models.NewContacts(db).FindByURL(owner.ID, senderURL)
	switch {
	case models.IsNotFound(err):
		return WriteResult(w, StatusUnknown, "contact not found")
	case err != nil:
		return err
	}
	log := env.Log().With("uid", owner.ID, "contact", sender.ID)
	if sender.Blocked {
		return WriteResult(w, StatusRejected, "blocked")
	}
	err = httpsig.Verify(r, body, func(string) (crypto.PublicKey, error) {
		return icrypto.ParseRSAPublicKey([]byte(sender.PubKey))
	})
	if err != nil {
		log.Info("dfrn: signature verification failed", "err", err)
		return WriteResult(w, StatusRejected, "signature verification failed")
	}
	form, err := ParseForm(body)
	if err != nil {
		return WriteResult(w, StatusRejected, err.Error())
	}
	var opts []ImporterOption
	if in.Relay != nil {
		opts = append(opts, WithRelay(in.Relay))
	}
	n, err := NewImporter(env, opts...).Import(ctx, owner, sender, form)
	if err != nil {
		return err
	}
	log.Debug("dfrn: notification imported", "items", n)
	return WriteResult(w, StatusOK, "")
}
