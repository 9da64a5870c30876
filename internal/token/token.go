// Package token generates the opaque identifiers that name uploaded files.
package token

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Generate returns a fresh 32-character lowercase hex token. Tokens are backed
// by a version 4 UUID, so collisions are negligible for the lifetime of the
// registry, and the hex alphabet makes them usable directly as a path segment.
func Generate() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
