package wellknown

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/fedinode/fedinode/internal/config"
	"github.com/fedinode/fedinode/internal/crypto"
	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/internal/webfinger"
	"github.com/fedinode/fedinode/models"
)

// Webfinger serves the resource descriptor of a local user, named by
// address or profile URL. The descriptor carries the links every protocol
// extractor needs: DFRN, Diaspora and OStatus.
func Webfinger(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		resource = r.URL.Query().Get("uri")
	}
	nick, err := nickname(env.Config, resource)
	if err != nil {
		return httpx.Error(http.StatusNotFound, err)
	}
	o, err := owner(env, r, nick)
	if err != nil {
		return err
	}
	wf, err := descriptor(env.Config, o)
	if err != nil {
		return err
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if wantsXML(r) {
		return writeXRD(w, wf)
	}
	return writeJRD(w, wf)
}

// nickname returns the local nickname named by resource.
func nickname(cfg *config.Config, resource string) (string, error) {
	if nick, ok := strings.CutPrefix(resource, cfg.BaseURL+"/profile/"); ok && nick != "" {
		return nick, nil
	}
	acct, err := webfinger.Parse(resource)
	if err != nil {
		return "", err
	}
	if acct.User == "" || acct.Host == "" || !strings.EqualFold(acct.Host, cfg.Hostname) {
		return "", errors.New("not a local resource: " + resource)
	}
	return acct.User, nil
}

func descriptor(cfg *config.Config, o *models.Owner) (*webfinger.Webfinger, error) {
	pub, err := crypto.ParseRSAPublicKey(o.PublicKey)
	if err != nil {
		return nil, err
	}
	self := o.Self
	return &webfinger.Webfinger{
		Subject: "acct:" + o.Addr(),
		Aliases: []string{self.URL},
		Links: []webfinger.Link{
			{Rel: webfinger.RelDFRN, Href: self.URL},
			{Rel: webfinger.RelFeed, Type: "application/atom+xml", Href: self.Poll},
			{Rel: webfinger.RelProfilePage, Type: "text/html", Href: self.URL},
			{Rel: webfinger.RelHCard, Type: "text/html", Href: cfg.BaseURL + "/hcard/" + o.Nickname},
			{Rel: webfinger.RelAvatar, Type: "image/jpeg", Href: self.Photo},
			{Rel: webfinger.RelSeedLocation, Type: "text/html", Href: cfg.BaseURL},
			{Rel: webfinger.RelGUID, Type: "text/html", Href: o.GUID},
			{Rel: webfinger.RelDiasporaPublicKey, Type: "RSA", Href: base64.StdEncoding.EncodeToString(o.PublicKey)},
			{Rel: webfinger.RelSalmon, Href: cfg.BaseURL + "/salmon/" + o.Nickname},
			{Rel: webfinger.RelMagicPublicKey, Href: "data:application/magic-public-key," + crypto.MagicPublicKey(pub)},
		},
	}, nil
}
