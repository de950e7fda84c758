package httpx

import (
	"net/http"
	"strings"
)

// MediaType returns the lower cased media type of the request, without
// parameters. A request without a Content-Type is application/octet-stream.
func MediaType(req *http.Request) string {
	typ, _, _ := strings.Cut(req.Header.Get("Content-Type"), ";")
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		typ = "application/octet-stream"
	}
	return typ
}
