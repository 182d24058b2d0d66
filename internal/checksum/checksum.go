// Package checksum provides content digests used for index drift detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Tree collapses a set of per-note digests (keyed by note id) into one
// order-independent digest of the whole repository. The index stores this
// value so staleness can be probed with a single comparison.
func Tree(sums map[string]string) string {
	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write([]byte(sums[id]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
