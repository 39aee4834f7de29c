// Package index coordinates writes across the content store and the derived
// vector and lexical indexes, and checks cross-store consistency.
package index

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/ShankarKakumani/eywa/internal/errors"
	"github.com/ShankarKakumani/eywa/internal/store"
)

// lockStripes is the number of per-document lock stripes.
const lockStripes = 64

// DocumentWrite is one document's worth of indexed output.
// Vectors is parallel to Chunks.
type DocumentWrite struct {
	Document *store.Document
	Chunks   []*store.ChunkRow
	Vectors  [][]float32
}

// Writer commits documents to all three stores in a fixed order:
// document row, vectors, lexical entries, then chunk rows. The chunk rows
// land last and act as the commit marker: search only surfaces chunks it
// can load from the content store, so a crash mid-commit leaves the
// previous version of the document visible and at worst some orphaned
// derived entries for the consistency checker to sweep.
type Writer struct {
	content store.ContentStore
	vectors store.VectorStore
	lexical store.BM25Index
	logger  *slog.Logger

	// Striped per-document locks: concurrent commits to different
	// documents proceed in parallel, same document serializes.
	locks [lockStripes]sync.Mutex
}

// NewWriter creates a Writer over the three stores.
func NewWriter(content store.ContentStore, vectors store.VectorStore, lexical store.BM25Index, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		content: content,
		vectors: vectors,
		lexical: lexical,
		logger:  logger,
	}
}

func (w *Writer) lockFor(docID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(docID))
	return &w.locks[h.Sum32()%lockStripes]
}

// Commit writes a batch of documents. Each document commits independently;
// the first failure aborts the remainder of the batch and is returned.
func (w *Writer) Commit(ctx context.Context, writes []*DocumentWrite) error {
	for _, wr := range writes {
		if err := w.CommitOne(ctx, wr); err != nil {
			return err
		}
	}
	return nil
}

// CommitOne writes a single document to all stores.
// Re-ingesting an existing document replaces its chunks; stale derived
// entries from the previous version are removed after the new chunk rows
// are committed.
func (w *Writer) CommitOne(ctx context.Context, wr *DocumentWrite) error {
	if wr.Document == nil {
		return errors.ValidationError("document write missing document", nil)
	}
	if len(wr.Chunks) != len(wr.Vectors) {
		return errors.ValidationError("chunk and vector counts differ", nil).
			WithDetail("doc_id", wr.Document.ID)
	}

	mu := w.lockFor(wr.Document.ID)
	mu.Lock()
	defer mu.Unlock()

	docID := wr.Document.ID

	// Chunk IDs of the currently committed version, for stale cleanup.
	oldIDs, err := w.content.ChunkIDsByDoc(ctx, docID)
	if err != nil {
		return errors.StoreWriteError("failed to read existing chunks", err).
			WithDetail("doc_id", docID)
	}

	// 1. Document row
	if err := w.content.PutDocument(ctx, wr.Document); err != nil {
		return errors.StoreWriteError("failed to write document", err).
			WithDetail("doc_id", docID).
			WithDetail("stage", "content_document")
	}

	chunkIDs := make([]string, len(wr.Chunks))
	lexDocs := make([]*store.LexicalDoc, len(wr.Chunks))
	for i, c := range wr.Chunks {
		chunkIDs[i] = c.ID
		lexDocs[i] = &store.LexicalDoc{
			ID:       c.ID,
			DocID:    c.DocID,
			SourceID: c.SourceID,
			Content:  c.Text,
		}
	}

	// 2. Vectors
	if err := w.vectors.Add(ctx, chunkIDs, wr.Vectors); err != nil {
		return errors.StoreWriteError("failed to write vectors", err).
			WithDetail("doc_id", docID).
			WithDetail("stage", "vector")
	}

	// 3. Lexical entries
	if err := w.lexical.Index(ctx, lexDocs); err != nil {
		return errors.StoreWriteError("failed to write lexical index", err).
			WithDetail("doc_id", docID).
			WithDetail("stage", "lexical")
	}

	// 4. Chunk rows: the commit marker
	if err := w.content.ReplaceChunks(ctx, docID, wr.Chunks); err != nil {
		return errors.StoreWriteError("failed to write chunks", err).
			WithDetail("doc_id", docID).
			WithDetail("stage", "content_chunks")
	}

	// Sweep derived entries for chunks that existed in the previous version
	// but not the new one. Best-effort: leftovers are orphans the
	// consistency checker removes.
	stale := staleIDs(oldIDs, chunkIDs)
	if len(stale) > 0 {
		if err := w.vectors.Delete(ctx, stale); err != nil {
			w.logger.Warn("failed to delete stale vectors",
				slog.String("doc_id", docID),
				slog.Int("count", len(stale)),
				slog.String("error", err.Error()))
		}
		if err := w.lexical.Delete(ctx, stale); err != nil {
			w.logger.Warn("failed to delete stale lexical entries",
				slog.String("doc_id", docID),
				slog.Int("count", len(stale)),
				slog.String("error", err.Error()))
		}
	}

	w.logger.Debug("document committed",
		slog.String("doc_id", docID),
		slog.Int("chunks", len(wr.Chunks)),
		slog.Int("stale_removed", len(stale)))

	return nil
}

// Delete removes a document from all stores in reverse commit order:
// chunk rows first (hides the document from search), then the derived
// indexes, then the document row.
func (w *Writer) Delete(ctx context.Context, docID string) error {
	mu := w.lockFor(docID)
	mu.Lock()
	defer mu.Unlock()

	chunkIDs, err := w.content.ChunkIDsByDoc(ctx, docID)
	if err != nil {
		return errors.StoreWriteError("failed to read chunks for delete", err).
			WithDetail("doc_id", docID)
	}

	if err := w.content.DeleteChunksByDoc(ctx, docID); err != nil {
		return errors.StoreWriteError("failed to delete chunks", err).
			WithDetail("doc_id", docID).
			WithDetail("stage", "content_chunks")
	}

	if len(chunkIDs) > 0 {
		if err := w.lexical.Delete(ctx, chunkIDs); err != nil {
			return errors.StoreWriteError("failed to delete lexical entries", err).
				WithDetail("doc_id", docID).
				WithDetail("stage", "lexical")
		}
		if err := w.vectors.Delete(ctx, chunkIDs); err != nil {
			return errors.StoreWriteError("failed to delete vectors", err).
				WithDetail("doc_id", docID).
				WithDetail("stage", "vector")
		}
	}

	if err := w.content.DeleteDocument(ctx, docID); err != nil {
		return errors.StoreWriteError("failed to delete document", err).
			WithDetail("doc_id", docID).
			WithDetail("stage", "content_document")
	}

	w.logger.Debug("document deleted",
		slog.String("doc_id", docID),
		slog.Int("chunks", len(chunkIDs)))

	return nil
}

// staleIDs returns the members of old that are absent from current.
func staleIDs(old, current []string) []string {
	if len(old) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(current))
	for _, id := range current {
		keep[id] = struct{}{}
	}
	var stale []string
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale
}
