package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 of payload keyed by secret and returns the
// hex-encoded digest. The digest is computed over the exact bytes that go on
// the wire, so callers must sign the marshaled body, not re-marshal afterwards.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature for payload under secret.
// Comparison is constant-time.
func Verify(secret string, payload []byte, sig string) bool {
	want := Sign(secret, payload)
	return hmac.Equal([]byte(sig), []byte(want))
}
