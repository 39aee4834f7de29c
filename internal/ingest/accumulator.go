// Package ingest runs the asynchronous ingestion pipeline: validate, chunk,
// embed, accumulate into batches, and commit through the index writer.
package ingest

import (
	"sync"

	"github.com/ShankarKakumani/eywa/internal/index"
)

// Default batch thresholds. A batch flushes when any one is reached.
const (
	DefaultBatchMaxDocs   = 8
	DefaultBatchMaxChunks = 256
	DefaultBatchMaxBytes  = 8 << 20 // 8 MiB
)

// Accumulator gathers processed documents into batches so index commits
// amortize across documents instead of hitting the stores once per doc.
type Accumulator struct {
	mu        sync.Mutex
	maxDocs   int
	maxChunks int
	maxBytes  int64

	writes []*index.DocumentWrite
	chunks int
	bytes  int64
}

// NewAccumulator creates an accumulator with the given thresholds.
// Zero or negative thresholds fall back to the defaults.
func NewAccumulator(maxDocs, maxChunks int, maxBytes int64) *Accumulator {
	if maxDocs <= 0 {
		maxDocs = DefaultBatchMaxDocs
	}
	if maxChunks <= 0 {
		maxChunks = DefaultBatchMaxChunks
	}
	if maxBytes <= 0 {
		maxBytes = DefaultBatchMaxBytes
	}
	return &Accumulator{
		maxDocs:   maxDocs,
		maxChunks: maxChunks,
		maxBytes:  maxBytes,
	}
}

// Add appends a processed document. When the addition reaches any
// threshold, the accumulated batch (including the new document) is
// returned and the accumulator resets; otherwise Add returns nil.
func (a *Accumulator) Add(wr *index.DocumentWrite) []*index.DocumentWrite {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.writes = append(a.writes, wr)
	a.chunks += len(wr.Chunks)
	a.bytes += writeSize(wr)

	if len(a.writes) >= a.maxDocs || a.chunks >= a.maxChunks || a.bytes >= a.maxBytes {
		return a.takeLocked()
	}
	return nil
}

// Drain returns whatever is accumulated, resetting the accumulator.
// Returns nil when empty.
func (a *Accumulator) Drain() []*index.DocumentWrite {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.takeLocked()
}

// Len returns the number of accumulated documents.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.writes)
}

func (a *Accumulator) takeLocked() []*index.DocumentWrite {
	if len(a.writes) == 0 {
		return nil
	}
	batch := a.writes
	a.writes = nil
	a.chunks = 0
	a.bytes = 0
	return batch
}

// writeSize estimates the in-memory footprint of a processed document:
// original content, chunk text, and embedding vectors.
func writeSize(wr *index.DocumentWrite) int64 {
	size := int64(len(wr.Document.Content))
	for _, c := range wr.Chunks {
		size += int64(len(c.Text))
	}
	for _, v := range wr.Vectors {
		size += int64(4 * len(v))
	}
	return size
}
