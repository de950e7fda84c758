// package to writes response bodies in the encodings remote nodes expect.
package to

import (
	"net/http"

	"github.com/go-json-experiment/json"
)

// Content types of discovery documents.
const (
	JRD = "application/jrd+json; charset=utf-8"
	XRD = "application/xrd+xml; charset=utf-8"
)

// JSON writes the given object to the response body as JSON.
// If obj is a nil slice, an empty JSON array is written.
// If obj is a nil map, an empty JSON object is written.
// If obj is a nil pointer, a null is written.
func JSON(w http.ResponseWriter, obj any) error {
	return JSONAs(w, "application/json; charset=utf-8", obj)
}

// JSONAs is JSON with a caller supplied content type, eg. JRD.
func JSONAs(w http.ResponseWriter, contentType string, obj any) error {
	w.Header().Set("Content-Type", contentType)
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{
		Indent: "  ",
	}, w, obj)
}

// XMLMarshaler is implemented by documents which encode themselves,
// declaration included.
type XMLMarshaler interface {
	MarshalXRD() ([]byte, error)
}

// XML writes the XRD encoding of doc.
func XML(w http.ResponseWriter, doc XMLMarshaler) error {
	b, err := doc.MarshalXRD()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", XRD)
	_, err = w.Write(b)
	return err
}
