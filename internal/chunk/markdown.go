package chunk

import (
	"context"
	"regexp"
	"strings"

	"github.com/ShankarKakumani/eywa/internal/errors"
)

// MarkdownChunker implements header-based markdown chunking.
// Chunks never cross heading boundaries; the enclosing headings become
// the chunk's header trail.
type MarkdownChunker struct {
	opts Options
}

var (
	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	// Matches sentences within a paragraph.
	sentencePattern = regexp.MustCompile(`[^.!?]*[.!?]+(?:\s+|$)|[^.!?]+$`)
)

// NewMarkdownChunker creates a markdown chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(Options{})
}

// NewMarkdownChunkerWithOptions creates a markdown chunker with a custom size band.
func NewMarkdownChunkerWithOptions(opts Options) *MarkdownChunker {
	return &MarkdownChunker{opts: opts.withDefaults()}
}

// Chunk splits a markdown document into chunks along heading boundaries.
func (c *MarkdownChunker) Chunk(ctx context.Context, doc *Document) ([]Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, errors.New(errors.ErrCodeEmptyDocument, "document has no content", nil).
			WithDetail("doc_id", doc.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := doc.Content
	bodyStart := 0

	// Frontmatter is metadata, not retrievable content.
	if m := frontmatterPattern.FindString(content); m != "" {
		bodyStart = len(m)
	}

	sections := parseSections(content, bodyStart)

	var chunks []Chunk
	for _, sec := range sections {
		pieces := packSection(sec.body, c.opts)
		pieces = mergeSmallTail(pieces, c.opts)
		cursor := sec.bodyStart
		for _, p := range pieces {
			start := locate(content, cursor, p.text)
			end := start + len(p.text)
			cursor = end
			chunks = append(chunks, Chunk{
				ID:          ChunkID(doc.ID, len(chunks)),
				DocID:       doc.ID,
				Ordinal:     len(chunks),
				Text:        p.text,
				HeaderTrail: sec.trail,
				Truncated:   p.truncated,
				StartOffset: start,
				EndOffset:   end,
			})
		}
	}

	if len(chunks) == 0 {
		return nil, errors.ChunkingError("document produced no chunks", nil).
			WithDetail("doc_id", doc.ID)
	}

	return chunks, nil
}

// section is a heading-delimited region of the document.
type section struct {
	trail     []string
	body      string
	bodyStart int // byte offset of the body within the document
}

// parseSections walks the document line by line, maintaining the
// heading stack. Content before the first heading becomes a section
// with an empty trail.
func parseSections(content string, bodyStart int) []section {
	lines := strings.Split(content[bodyStart:], "\n")
	headerStack := make([]string, 6)

	var sections []section
	var body strings.Builder
	trail := []string{}
	offset := bodyStart
	sectionStart := bodyStart

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			sections = append(sections, section{trail: trail, body: text, bodyStart: sectionStart})
		}
		body.Reset()
	}

	for _, line := range lines {
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush()

			level := len(m[1])
			headerStack[level-1] = strings.TrimSpace(m[2])
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			trail = nil
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					trail = append(trail, headerStack[i])
				}
			}
			sectionStart = offset + len(line) + 1
		} else {
			if body.Len() == 0 {
				sectionStart = offset
			}
			body.WriteString(line)
			body.WriteString("\n")
		}
		offset += len(line) + 1
	}
	flush()

	return sections
}

// piece is a packed chunk body before ids and offsets are assigned.
type piece struct {
	text      string
	truncated bool
}

// packSection packs a section body into pieces within the size band.
// Oversize paragraphs split at sentences, oversize sentences at a hard
// rune boundary.
func packSection(body string, opts Options) []piece {
	paragraphs := splitParagraphs(body)

	var pieces []piece
	var current strings.Builder
	currentRunes := 0

	emit := func(truncated bool) {
		if current.Len() == 0 {
			return
		}
		pieces = append(pieces, piece{text: current.String(), truncated: truncated})
		current.Reset()
		currentRunes = 0
	}

	for _, para := range paragraphs {
		paraRunes := len([]rune(para))

		if paraRunes > opts.MaxChunkRunes {
			emit(false)
			pieces = append(pieces, splitOversize(para, opts)...)
			continue
		}

		if currentRunes > 0 && currentRunes+2+paraRunes > opts.MaxChunkRunes {
			emit(false)
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
			currentRunes += 2
		}
		current.WriteString(para)
		currentRunes += paraRunes
	}
	emit(false)

	return pieces
}

// splitOversize splits a single oversize paragraph at sentence
// boundaries, falling back to hard rune cuts.
func splitOversize(para string, opts Options) []piece {
	var pieces []piece
	var current strings.Builder
	currentRunes := 0

	emit := func() {
		if current.Len() == 0 {
			return
		}
		pieces = append(pieces, piece{text: strings.TrimSpace(current.String())})
		current.Reset()
		currentRunes = 0
	}

	for _, sentence := range sentencePattern.FindAllString(para, -1) {
		runes := []rune(sentence)

		if len(runes) > opts.MaxChunkRunes {
			emit()
			for start := 0; start < len(runes); start += opts.MaxChunkRunes {
				end := min(start+opts.MaxChunkRunes, len(runes))
				text := strings.TrimSpace(string(runes[start:end]))
				if text != "" {
					pieces = append(pieces, piece{text: text, truncated: true})
				}
			}
			continue
		}

		if currentRunes > 0 && currentRunes+len(runes) > opts.MaxChunkRunes {
			emit()
		}
		current.WriteString(sentence)
		currentRunes += len(runes)
	}
	emit()

	return pieces
}

// mergeSmallTail folds a sub-minimum final piece into its predecessor
// when the result stays within the band.
func mergeSmallTail(pieces []piece, opts Options) []piece {
	n := len(pieces)
	if n < 2 {
		return pieces
	}
	last := pieces[n-1]
	prev := pieces[n-2]
	lastRunes := len([]rune(last.text))
	prevRunes := len([]rune(prev.text))
	if lastRunes >= opts.MinChunkRunes || prevRunes+2+lastRunes > opts.MaxChunkRunes {
		return pieces
	}
	merged := piece{
		text:      prev.text + "\n\n" + last.text,
		truncated: prev.truncated || last.truncated,
	}
	return append(pieces[:n-2], merged)
}

// splitParagraphs splits on blank lines while keeping fenced code
// blocks intact.
func splitParagraphs(body string) []string {
	parts := strings.Split(body, "\n\n")

	var paragraphs []string
	var fence strings.Builder
	inFence := false

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		if inFence {
			fence.WriteString("\n\n")
			fence.WriteString(trimmed)
			if strings.Contains(trimmed, "```") {
				paragraphs = append(paragraphs, fence.String())
				fence.Reset()
				inFence = false
			}
			continue
		}

		if strings.Count(trimmed, "```")%2 == 1 {
			inFence = true
			fence.WriteString(trimmed)
			continue
		}

		paragraphs = append(paragraphs, trimmed)
	}
	if inFence {
		paragraphs = append(paragraphs, fence.String())
	}

	return paragraphs
}

// locate finds the byte offset of text at or after cursor. Packed
// pieces reorder nothing, so a forward scan always succeeds for
// untruncated content; fallback is the cursor itself.
func locate(content string, cursor int, text string) int {
	if cursor > len(content) {
		return len(content)
	}
	needle := text
	if idx := strings.Index(needle, "\n\n"); idx > 0 {
		needle = needle[:idx]
	}
	if idx := strings.Index(content[cursor:], needle); idx >= 0 {
		return cursor + idx
	}
	return cursor
}
