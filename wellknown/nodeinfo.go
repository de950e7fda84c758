package wellknown

import (
	"errors"
	"net/http"

	"github.com/fedinode/fedinode/internal/httpx"
	"github.com/fedinode/fedinode/internal/to"
	"github.com/fedinode/fedinode/models"
	"github.com/go-chi/chi/v5"
)

func NodeInfoIndex(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"links": []any{
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": env.Config.BaseURL + "/nodeinfo/2.0",
			},
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.1",
				"href": env.Config.BaseURL + "/nodeinfo/2.1",
			},
		},
	})
}

func NodeInfoShow(env *models.Env, w http.ResponseWriter, r *http.Request) error {
	software := map[string]any{
		"name":    "fedinode",
		"version": "0.0.0-devel",
	}
	version := chi.URLParam(r, "version")
	switch version {
	case "2.0":
		// https://github.com/jhass/nodeinfo/blob/main/schemas/2.0/schema.json
	case "2.1":
		software["repository"] = "https://github.com/fedinode/fedinode"
	default:
		return httpx.Error(http.StatusNotFound, errors.New("unsupported version: "+version))
	}
	usage, err := usage(env, r)
	if err != nil {
		return err
	}
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"version":           version,
		"software":          software,
		"protocols":         protocols(env),
		"services":          services(env),
		"usage":             usage,
		"openRegistrations": false,
		"metadata": map[string]any{
			"nodeName": env.Config.Hostname,
		},
	})
}

// protocols lists the enabled federation protocols.
func protocols(env *models.Env) []string {
	p := []string{"dfrn"}
	f := env.Config.Federation
	if f.DFRNOnly {
		return p
	}
	if f.DiasporaEnabled {
		p = append(p, "diaspora")
	}
	if f.OStatusEnabled {
		p = append(p, "ostatus")
	}
	return p
}

func services(env *models.Env) map[string]any {
	outbound := []string{"atom1.0"}
	f := env.Config.Federation
	if f.MailEnabled && !f.DFRNOnly {
		outbound = append(outbound, "smtp")
	}
	return map[string]any{
		"inbound":  []string{},
		"outbound": outbound,
	}
}

func usage(env *models.Env, r *http.Request) (map[string]any, error) {
	db := env.DB.WithContext(r.Context())
	var users, posts int64
	if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Item{}).Where("origin = ? AND parent_id = id AND deleted = ?", true, false).Count(&posts).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"users": map[string]any{
			"total": users,
		},
		"localPosts": posts,
	}, nil
}
