package cdg

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// StableID derives an id from a semantic key: the same parts always yield the same id.
func StableID(prefix string, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return prefix + "_" + hex.EncodeToString(h[:8])
}
