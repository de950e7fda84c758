// Package httpx adapts handlers which return errors to http.HandlerFunc and
// decodes request parameters for them.
package httpx

import (
	"errors"
	"net/http"

	"github.com/fedinode/fedinode/internal/to"
	"golang.org/x/exp/slog"
)

// Error wraps err with the HTTP status code to report to the remote node.
func Error(code int, err error) error {
	return &StatusError{Code: code, Err: err}
}

// StatusError is an error carrying an HTTP status code.
type StatusError struct {
	Code int
	Err  error
}

func (se *StatusError) Error() string { return se.Err.Error() }

func (se *StatusError) Unwrap() error { return se.Err }

// Status returns the HTTP status code of the error.
func (se *StatusError) Status() int { return se.Code }

// HandlerFunc adapts fn to an http.HandlerFunc. envFn supplies the per
// request environment. A StatusError is reported with its code and message,
// any other error as a bare 500 so internal detail does not leak to peers.
func HandlerFunc[E any](envFn func(r *http.Request) *E, fn func(*E, http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env := envFn(r)
		err := fn(env, w, r)
		if err == nil {
			return
		}
		log := slog.Default()
		if l, ok := any(env).(interface{ Log() *slog.Logger }); ok {
			log = l.Log()
		}
		code, msg := http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
		if se := new(StatusError); errors.As(err, &se) {
			code, msg = se.Status(), se.Error()
			log.Info("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
		} else {
			log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		to.JSON(w, map[string]any{"error": msg})
	}
}
