// Package sourceid derives deterministic document IDs from a document's
// source (a URL or a file path). The same source always yields the same ID,
// so re-ingesting a source overwrites its chunks instead of duplicating them.
package sourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const prefix = "src:"

// DocID returns a stable ID for the given source identifier.
func DocID(source string) string {
	hash := sha256.Sum256([]byte(source))
	return prefix + hex.EncodeToString(hash[:])
}

// ChunkID returns the ID of the idx-th chunk of the source.
func ChunkID(source string, idx int) string {
	return fmt.Sprintf("%s#%d", DocID(source), idx)
}
