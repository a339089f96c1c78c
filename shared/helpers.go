package shared

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// NewRequestID returns a fresh outbound request id in canonical UUID form.
func NewRequestID() string {
	return uuid.NewString()
}

// RandomID returns a URL-safe random token used to tag a session in logs.
func RandomID() string {
	key := make([]byte, 12)
	_, err := rand.Read(key)
	if err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(key)
}
