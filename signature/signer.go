// Package signature provides HMAC-SHA256 webhook signing and verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Timestamp formats a signing time as the ISO-8601 UTC string carried in the
// X-Webhook-Timestamp header and covered by the signature.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Signer computes HMAC-SHA256 signatures for webhook payloads.
type Signer struct{}

// NewSigner returns a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign generates the HMAC-SHA256 signature for the given payload.
// The content to sign is "{timestamp}.{payload}", where timestamp is the
// ISO-8601 UTC string from Timestamp and payload is the exact byte sequence
// transmitted on the wire. Returns the lowercase hex digest.
func (s *Signer) Sign(payload []byte, secret, timestamp string) string {
	return Sign(payload, secret, timestamp)
}

// Sign generates the HMAC-SHA256 signature for the given payload.
// The content to sign is "{timestamp}.{payload}". Returns the lowercase hex
// digest. Sign is a pure function of its inputs: identical secret, payload
// bytes, and timestamp always yield the identical signature.
func Sign(payload []byte, secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
