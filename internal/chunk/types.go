package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk size defaults, in runes.
const (
	DefaultMinChunkRunes = 200
	DefaultMaxChunkRunes = 2000
)

// Format identifies the declared content format of a document.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Document is the chunker input.
type Document struct {
	ID      string
	Title   string
	Format  Format
	Content string
}

// Chunk is a retrievable unit of content.
type Chunk struct {
	// ID is deterministic: SHA256(doc_id + ":" + ordinal)[:16].
	// Re-ingesting a document reproduces the same ids, which makes
	// index replacement idempotent.
	ID string

	DocID   string
	Ordinal int

	// Text is the chunk body as it appears in the document.
	Text string

	// HeaderTrail is the breadcrumb of enclosing headings, outermost first.
	HeaderTrail []string

	// Truncated marks chunks cut at a hard rune boundary because no
	// paragraph or sentence split was possible.
	Truncated bool

	// StartOffset and EndOffset are byte offsets into the document content.
	StartOffset int
	EndOffset   int
}

// EmbeddingText returns the text handed to the embedder: the header
// trail as a contextual prefix, then the chunk body.
func (c *Chunk) EmbeddingText() string {
	if len(c.HeaderTrail) == 0 {
		return c.Text
	}
	return strings.Join(c.HeaderTrail, " > ") + "\n\n" + c.Text
}

// Chunker splits documents into chunks.
type Chunker interface {
	Chunk(ctx context.Context, doc *Document) ([]Chunk, error)
}

// Options configures the chunk size band.
type Options struct {
	MinChunkRunes int
	MaxChunkRunes int
}

func (o Options) withDefaults() Options {
	if o.MinChunkRunes == 0 {
		o.MinChunkRunes = DefaultMinChunkRunes
	}
	if o.MaxChunkRunes == 0 {
		o.MaxChunkRunes = DefaultMaxChunkRunes
	}
	return o
}

// ChunkID computes the deterministic chunk id for a document ordinal.
func ChunkID(docID string, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", docID, ordinal)))
	return hex.EncodeToString(sum[:])[:16]
}
