package chunk

import (
	"context"
	"strings"

	"github.com/ShankarKakumani/eywa/internal/errors"
)

// TextChunker is the paragraph-based fallback for plain text.
type TextChunker struct {
	opts Options
}

// NewTextChunker creates a text chunker with default options.
func NewTextChunker() *TextChunker {
	return NewTextChunkerWithOptions(Options{})
}

// NewTextChunkerWithOptions creates a text chunker with a custom size band.
func NewTextChunkerWithOptions(opts Options) *TextChunker {
	return &TextChunker{opts: opts.withDefaults()}
}

// Chunk splits plain text into paragraph-packed chunks.
func (c *TextChunker) Chunk(ctx context.Context, doc *Document) ([]Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, errors.New(errors.ErrCodeEmptyDocument, "document has no content", nil).
			WithDetail("doc_id", doc.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pieces := packSection(strings.TrimSpace(doc.Content), c.opts)
	pieces = mergeSmallTail(pieces, c.opts)

	chunks := make([]Chunk, 0, len(pieces))
	cursor := 0
	for i, p := range pieces {
		start := locate(doc.Content, cursor, p.text)
		end := start + len(p.text)
		cursor = end
		chunks = append(chunks, Chunk{
			ID:          ChunkID(doc.ID, i),
			DocID:       doc.ID,
			Ordinal:     i,
			Text:        p.text,
			Truncated:   p.truncated,
			StartOffset: start,
			EndOffset:   end,
		})
	}

	return chunks, nil
}

// DetectFormat resolves the effective format of a document. The declared
// format wins; otherwise a content sniff looks for markdown headings.
func DetectFormat(doc *Document) Format {
	switch doc.Format {
	case FormatMarkdown, FormatText:
		return doc.Format
	}
	if headerPattern.MatchString(doc.Content) {
		return FormatMarkdown
	}
	return FormatText
}

// ForDocument picks a chunker for the document based on DetectFormat.
func ForDocument(doc *Document, opts Options) Chunker {
	if DetectFormat(doc) == FormatMarkdown {
		return NewMarkdownChunkerWithOptions(opts)
	}
	return NewTextChunkerWithOptions(opts)
}
