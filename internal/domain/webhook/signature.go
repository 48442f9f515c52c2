package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignaturePrefix is the scheme prefix of the X-Hub-Signature-256 header.
const SignaturePrefix = "sha256="

// Sign returns the X-Hub-Signature-256 value for payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature equals "sha256=" followed by the
// lowercase hex HMAC-SHA256 of payload keyed with secret. The comparison runs in
// constant time over the full header. Missing input yields false.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected := Sign(payload, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
