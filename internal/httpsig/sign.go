// Package httpsig implements the HTTP Signature scheme as defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
)

const (
	// RequestTarget is the pseudo-header used to sign the request target.
	RequestTarget = "(request-target)"
)

// Sign signs the request using the given keyID and privateKey.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	key, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("unsupported private key type %T", privateKey)
	}
	req.Header.Set("Date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")) // Date must be in GMT, not UTC 🤯
	if req.Host == "" {
		req.Host = req.URL.Host
	}
	headersToSign := []string{RequestTarget, "host", "date"}
	switch req.Method {
	case "GET", "HEAD":
		headersToSign = append(headersToSign, "accept")
	default:
		headersToSign = append(headersToSign, "digest")
		req.Header.Set("Digest", digest(body))
	}

	signingString, err := buildSigningString(req, headersToSign)
	if err != nil {
		return err
	}
	hash := sha256.Sum256([]byte(signingString))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(sig)
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`, keyID, strings.Join(headersToSign, " "), enc))
	return nil
}

// Transport returns a requests.Transport which signs every request with the
// given key before handing it to next. body must be the exact request body.
func Transport(keyID string, privateKey crypto.PrivateKey, body []byte, next http.RoundTripper) requests.Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := Sign(req, keyID, privateKey, body); err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
		return next.RoundTrip(req)
	})
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

func buildSigningString(req *http.Request, headers []string) (string, error) {
	var sb bytes.Buffer
	for _, header := range headers {
		switch strings.ToLower(header) {
		case RequestTarget:
			sb.WriteString("(request-target): ")
			sb.WriteString(strings.ToLower(req.Method))
			sb.WriteString(" ")
			sb.WriteString(req.URL.Path)

			if req.URL.RawQuery != "" {
				sb.WriteString("?")
				sb.WriteString(req.URL.RawQuery)
			}
		case "host":
			sb.WriteString("host: ")
			sb.WriteString(req.Host)
		case "date", "accept", "digest", "content-type":
			sb.WriteString(strings.ToLower(header))
			sb.WriteString(": ")
			sb.WriteString(req.Header.Get(header))
		default:
			return "", fmt.Errorf("unknown header to sign: %s", header)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil // remove trailing newline
}
