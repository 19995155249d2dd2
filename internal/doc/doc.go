// Package doc loads documents as ordered sections of renderable markup.
package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const hashBytes = 8192 // First 8KB for content hash

// Section is one ordered chunk of a document: the unit of progress tracking
// and highlight anchoring. Orders are unique and strictly ascending within a
// document.
type Section struct {
	ID      string
	Order   int
	Title   string
	Content string
}

// Document is an ingested file: a stable content-derived identity plus its
// sections in reading order.
type Document struct {
	ID       string
	Title    string
	Sections []Section
}

// Extraction is not cheap for large EPUBs, so results are cached per content
// hash for the lifetime of the process.
var extractCache = gocache.New(30*time.Minute, 10*time.Minute)

// ComputeHash generates a content hash for file identity, so progress and
// highlights survive renames and moves.
func ComputeHash(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, hashBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}

	hash := sha256.Sum256(buf[:n])
	return hex.EncodeToString(hash[:16]), nil // First 16 bytes = 32 hex chars
}
