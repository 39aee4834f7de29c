package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// BM25Backend represents the BM25 index backend type.
type BM25Backend string

const (
	// BM25BackendFTS5 uses SQLite FTS5 for BM25 search (default).
	// Enables concurrent multi-process access via WAL mode.
	BM25BackendFTS5 BM25Backend = "fts5"

	// BM25BackendBleve uses Bleve v2 for BM25 search.
	// Has exclusive file locking via BoltDB - single process only.
	BM25BackendBleve BM25Backend = "bleve"
)

// NewBM25Index creates a BM25Index using the specified backend.
// The basePath should be the path without extension - the extension is
// added based on the backend type (.db for FTS5, .bleve for Bleve).
// If basePath is empty, creates an in-memory index for testing.
func NewBM25Index(basePath string, config BM25Config, backend string) (BM25Index, error) {
	switch backend {
	case string(BM25BackendFTS5), "":
		// Default to FTS5 (concurrent access, pure Go)
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteBM25Index(path, config)

	case string(BM25BackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveBM25Index(path, config)

	default:
		return nil, fmt.Errorf("unknown BM25 backend: %s (valid options: fts5, bleve)", backend)
	}
}

// DetectBM25Backend detects which backend an existing index uses based on
// file existence. Returns an empty string if no index exists.
// Used for backwards compatibility when opening existing data directories.
func DetectBM25Backend(basePath string) BM25Backend {
	// Check for FTS5 first (preferred)
	if fileExists(basePath + ".db") {
		return BM25BackendFTS5
	}

	if dirExists(basePath + ".bleve") {
		return BM25BackendBleve
	}

	// No existing index
	return ""
}

// BM25IndexPath returns the full path to the BM25 index file/directory
// for the given backend type.
func BM25IndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "lexical")
	switch backend {
	case string(BM25BackendBleve):
		return basePath + ".bleve"
	default:
		return basePath + ".db"
	}
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists at the given path.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
