// Package security authenticates trigger deliveries.
// A delivery carries either the shared trigger token or an HMAC-SHA256
// signature of the request body keyed by that token.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignaturePrefix precedes the hex digest in a signature header.
const SignaturePrefix = "sha256="

// Sign returns the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is a valid signature of body.
func VerifySignature(secret string, body []byte, sig string) bool {
	digest, ok := strings.CutPrefix(strings.TrimSpace(sig), SignaturePrefix)
	if !ok || secret == "" {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// TokenMatches compares a presented token with the configured one in
// constant time. An empty configured token never matches.
func TokenMatches(got, want string) bool {
	if want == "" {
		return false
	}
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}
