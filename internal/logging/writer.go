package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// rotatedTimeFormat names rotated files by rotation instant. Nanosecond
// precision keeps names unique under rapid rotation.
const rotatedTimeFormat = "20060102T150405.000000000"

// RotatingWriter is an io.Writer that rotates its file at a size cap.
// Rotated logs are zstd-compressed and named by rotation time
// (eywa-20260831T120000.000000000.log.zst); the oldest are pruned once
// more than maxFiles archives exist. Writes are synced so the active
// file tails cleanly.
type RotatingWriter struct {
	path     string
	stem     string // path without extension, base for archive names
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	written int64
}

// NewRotatingWriter creates the log file (and its directory) at path.
// maxSizeMB caps the active file; maxFiles caps the rotated archives.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:     path,
		stem:     path[:len(path)-len(filepath.Ext(path))],
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			// Keep appending to the oversized file rather than drop logs.
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err = w.file.Write(p)
	w.written += int64(n)
	if err == nil {
		_ = w.file.Sync()
	}
	return
}

// Sync flushes the active file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// rotate archives the active file and starts a fresh one.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	archive := fmt.Sprintf("%s-%s.log.zst",
		w.stem, time.Now().UTC().Format(rotatedTimeFormat))
	if err := compressFile(w.path, archive); err != nil {
		return fmt.Errorf("failed to archive log file: %w", err)
	}
	if err := os.Remove(w.path); err != nil {
		return fmt.Errorf("failed to remove rotated log file: %w", err)
	}

	w.pruneArchives()

	w.written = 0
	return w.openFile()
}

// pruneArchives removes the oldest archives beyond maxFiles. The
// timestamp names sort chronologically.
func (w *RotatingWriter) pruneArchives() {
	matches, err := filepath.Glob(w.stem + "-*.log.zst")
	if err != nil || len(matches) <= w.maxFiles {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-w.maxFiles] {
		_ = os.Remove(old)
	}
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		_ = out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
