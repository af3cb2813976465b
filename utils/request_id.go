package utils

import (
	"crypto/rand"
	"encoding/hex"
)

const requestIDPrefix = "sf-"

// NewRequestID returns an id for the X-Request-Id header of outbound
// backend calls. The backend echoes it in its logs.
func NewRequestID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return requestIDPrefix + hex.EncodeToString(buf[:])
}
