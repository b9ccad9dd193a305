package auth

import "crypto/subtle"

// Authenticator decides whether a transmission credential is acceptable for a
// device. The ingestion flow depends only on this interface, so a stronger
// scheme (per-device keys, JWT) can be substituted without touching it.
type Authenticator interface {
	Authenticate(deviceID, credential string) bool
}

// SharedSecret authenticates every device against one fixed secret string,
// carried in the "message" field of each transmission.
type SharedSecret struct {
	secret string
}

// NewSharedSecret returns an Authenticator backed by a single fixed secret.
func NewSharedSecret(secret string) *SharedSecret {
	return &SharedSecret{secret: secret}
}

// Authenticate ignores the device ID: any device holding the secret is valid.
func (s *SharedSecret) Authenticate(_, credential string) bool {
	return subtle.ConstantTimeCompare([]byte(s.secret), []byte(credential)) == 1
}
