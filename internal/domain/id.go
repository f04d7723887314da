package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a prefixed short id, e.g. "art_3f2a9c0d11b4".
func NewID(prefix string) string {
	u := uuid.New()
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(u[:])[:12])
}

// conflictSpace namespaces deterministic conflict ids.
var conflictSpace = uuid.MustParse("9f2c1b8e-5d4a-4c3b-9e21-7a6f0d8c5b41")

// ConflictID derives a stable id for the conflict between two claims, so a
// resolution snapshot is reproducible from the same claim set.
func ConflictID(key, claimA, claimB string) string {
	u := uuid.NewSHA1(conflictSpace, []byte(key+"|"+claimA+"|"+claimB))
	return fmt.Sprintf("conf_%s", hex.EncodeToString(u[:])[:12])
}
