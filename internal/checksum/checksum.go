// Package checksum fingerprints tree files. The digest detects external
// edits before a save and doubles as the HTTP ETag of a tree.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the lowercase hex SHA-256 of the tree file bytes.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
