// Package wellknown serves the documents remote nodes use to discover local
// users: host-meta, webfinger, nodeinfo and the DFRN profiles.
package wellknown

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/internal/to"
	"github.com/fedinode/fedinode/internal/webfinger"
	"github.com/fedinode/fedinode/models"
)

// owner returns the local user nick, or a 404.
func owner(env *models.Env, r *http.Request, nick string) (*models.Owner, error) {
	db := env.DB.WithContext(r.Context())
	user, err := models.NewUsers(db).FindByNickname(nick)
	switch {
	case models.IsNotFound(err):
		return nil, httpx.Error(http.StatusNotFound, errors.New("no such user: "+nick))
	case err != nil:
		return nil, err
	}
	return models.NewUsers(db).FindOwner(user.ID)
}

// wantsXML reports whether the client asked for XRD rather than JRD.
func wantsXML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "xrd+xml") || strings.Contains(accept, "text/xml") && !strings.Contains(accept, "json")
}

func writeXRD(w http.ResponseWriter, wf *webfinger.Webfinger) error {
	return to.XML(w, wf)
}

func writeJRD(w http.ResponseWriter, wf *webfinger.Webfinger) error {
	return to.JSONAs(w, to.JRD, wf)
}
