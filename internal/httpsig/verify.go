package httpsig

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Verify verifies signature of the request. If the signature covers the
// digest header, body must be the request body it was computed over.
func Verify(req *http.Request, body []byte, keyFn func(keyID string) (crypto.PublicKey, error)) error {
	sigHeader := req.Header.Get("Signature")
	if sigHeader == "" {
		return errors.New("Signature header is missing")
	}

	var (
		keyID   string
		algo    string
		sig     []byte
		headers []string
		err     error
	)
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("malformed signature part: %s", part)
		}
		v = strings.Trim(v, "\"")
		switch k {
		case "keyId":
			keyID = v
		case "algorithm":
			algo = v
		case "headers":
			headers = strings.Split(v, " ")
		case "signature":
			sig, err = base64.StdEncoding.DecodeString(v)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown signature part: %s", part)
		}
	}
	if keyID == "" {
		return errors.New("signature has no keyId")
	}

	for _, h := range headers {
		if strings.EqualFold(h, "digest") && req.Header.Get("Digest") != digest(body) {
			return errors.New("digest does not match body")
		}
	}

	signingString, err := buildSigningString(req, headers)
	if err != nil {
		return err
	}
	hash := sha256.Sum256([]byte(signingString))

	pubKey, err := keyFn(keyID)
	if err != nil {
		return err
	}
	switch algo {
	case "rsa-sha256", "hs2019", "":
		return rsaVerify(pubKey, hash[:], sig)
	default:
		return fmt.Errorf("unknown algorithm: %s", algo)
	}
}

// KeyID returns the keyId parameter of the request's Signature header.
func KeyID(req *http.Request) string {
	for _, part := range strings.Split(req.Header.Get("Signature"), ",") {
		if k, v, ok := strings.Cut(part, "="); ok && k == "keyId" {
			return strings.Trim(v, "\"")
		}
	}
	return ""
}

func rsaVerify(pubKey crypto.PublicKey, digest, sig []byte) error {
	pub, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("unsupported public key type %T", pubKey)
	}
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, sig)
}
