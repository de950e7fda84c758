package wellknown

import (
	"html/template"
	"net/http"

	"github.com/fedinode/fedinode/internal/to"
	"github.com/fedinode/fedinode/models"
	"github.com/go-chi/chi/v5"
)

// Noscrape serves the machine readable DFRN profile of a local user.
func Noscrape(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	o, err := owner(env, r, chi.URLParam(r, "nick"))
	if err != nil {
		return err
	}
	self := o.Self
	return to.JSON(w, map[string]any{
		"fn":           self.Name,
		"nick":         self.Nick,
		"guid":         o.GUID,
		"key":          string(o.PublicKey),
		"photo":        self.Photo,
		"addr":         self.Addr,
		"dfrn-request": env.Config.BaseURL + "/dfrn_request/" + o.Nickname,
		"dfrn-confirm": env.Config.BaseURL + "/dfrn_confirm/" + o.Nickname,
		"dfrn-notify":  self.Notify,
		"dfrn-poll":    self.Poll,
	})
}

var hcard = template.Must(template.New("hcard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Name}}</title>
<link rel="dfrn-request" href="{{.Request}}">
<link rel="dfrn-confirm" href="{{.Confirm}}">
<link rel="dfrn-notify" href="{{.Notify}}">
<link rel="dfrn-poll" href="{{.Poll}}">
</head>
<body>
<div class="vcard">
<span class="fn">{{.Name}}</span>
<span class="nickname">{{.Nick}}</span>
<span class="uid" style="display:none">{{.GUID}}</span>
<pre class="key" style="display:none">{{.Key}}</pre>
<img class="photo avatar" src="{{.Photo}}" alt="{{.Name}}">
</div>
</body>
</html>
`))

// HCard serves the h-card profile of a local user.
func HCard(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	o, err := owner(env, r, chi.URLParam(r, "nick"))
	if err != nil {
		return err
	}
	self := o.Self
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return hcard.Execute(w, map[string]string{
		"Name":    self.Name,
		"Nick":    self.Nick,
		"GUID":    o.GUID,
		"Key":     string(o.PublicKey),
		"Photo":   self.Photo,
		"Request": env.Config.BaseURL + "/dfrn_request/" + o.Nickname,
		"Confirm": env.Config.BaseURL + "/dfrn_confirm/" + o.Nickname,
		"Notify":  self.Notify,
		"Poll":    self.Poll,
	})
}
