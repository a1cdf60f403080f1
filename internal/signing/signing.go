// Package signing provides the HMAC helper behind short-lived document
// download URLs served by the local blob backend.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Signer generates and validates HMAC-SHA256 signatures over an object name
// and expiry timestamp.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer with the given secret key.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for an object name and unix expiry.
func (s *Signer) Sign(object string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(fmt.Sprintf("%s:%d", object, expiresUnix)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate checks a signature produced by Sign. Comparison is constant time.
func (s *Signer) Validate(object, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(object, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
