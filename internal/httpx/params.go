package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/schema"
)

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// Params decodes the query string of a GET or HEAD request, or the urlencoded
// body of a POST, into v using its schema tags.
func Params(r *http.Request, v any) error {
	var values url.Values
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		q, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			return Error(http.StatusBadRequest, err)
		}
		values = q
	case http.MethodPost:
		if typ := MediaType(r); r.Header.Get("Content-Type") != "" && typ != "application/x-www-form-urlencoded" {
			return Error(http.StatusUnsupportedMediaType, fmt.Errorf("unsupported media type: %q", typ))
		}
		if err := r.ParseForm(); err != nil {
			return Error(http.StatusBadRequest, err)
		}
		values = r.Form
	default:
		return Error(http.StatusMethodNotAllowed, errors.New("unsupported method: "+r.Method))
	}
	if err := decoder.Decode(v, values); err != nil {
		return Error(http.StatusBadRequest, err)
	}
	return nil
}
