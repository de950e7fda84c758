package wellknown

import (
	"net/http"

	"github.com/fedinode/fedinode/internal/webfinger"
	"github.com/fedinode/fedinode/models"
)

// HostMeta serves the host-meta document pointing at the webfinger endpoint.
func HostMeta(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	template := env.Config.BaseURL + "/.well-known/webfinger?resource={uri}"
	wf := &webfinger.Webfinger{
		Subject: env.Config.Hostname,
		Links: []webfinger.Link{
			{Rel: webfinger.RelLRDD, Type: "application/xrd+xml", Template: template},
			{Rel: webfinger.RelLRDD, Type: "application/jrd+json", Template: template},
		},
	}
	if r.URL.Path == "/.well-known/host-meta.json" {
		return writeJRD(w, wf)
	}
	return writeXRD(w, wf)
}
