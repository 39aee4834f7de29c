package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShankarKakumani/eywa/internal/index"
	"github.com/ShankarKakumani/eywa/internal/store"
)

func accWrite(docID string, chunks int, chunkLen int) *index.DocumentWrite {
	wr := &index.DocumentWrite{
		Document: &store.Document{ID: docID, Content: "doc content"},
	}
	for i := 0; i < chunks; i++ {
		wr.Chunks = append(wr.Chunks, &store.ChunkRow{
			ID:    fmt.Sprintf("%s-c%d", docID, i),
			DocID: docID,
			Text:  strings.Repeat("x", chunkLen),
		})
		wr.Vectors = append(wr.Vectors, make([]float32, 4))
	}
	return wr
}

func TestAccumulator_FlushesAtDocThreshold(t *testing.T) {
	// Given: an accumulator flushing at 3 docs
	acc := NewAccumulator(3, 1000, 1<<30)

	// When: adding below the threshold
	assert.Nil(t, acc.Add(accWrite("d1", 1, 10)))
	assert.Nil(t, acc.Add(accWrite("d2", 1, 10)))
	assert.Equal(t, 2, acc.Len())

	// Then: the third add returns the whole batch and resets
	batch := acc.Add(accWrite("d3", 1, 10))
	require.Len(t, batch, 3)
	assert.Equal(t, 0, acc.Len())
}

func TestAccumulator_FlushesAtChunkThreshold(t *testing.T) {
	// Given: an accumulator flushing at 10 chunks
	acc := NewAccumulator(100, 10, 1<<30)

	// When: two docs bring the chunk count to the threshold
	assert.Nil(t, acc.Add(accWrite("d1", 6, 10)))
	batch := acc.Add(accWrite("d2", 4, 10))

	// Then: the batch flushes
	require.Len(t, batch, 2)
}

func TestAccumulator_FlushesAtByteThreshold(t *testing.T) {
	// Given: an accumulator flushing at 1 KiB
	acc := NewAccumulator(100, 1000, 1024)

	// When: a single large doc exceeds the byte threshold
	batch := acc.Add(accWrite("d1", 1, 2048))

	// Then: it flushes immediately
	require.Len(t, batch, 1)
	assert.Equal(t, 0, acc.Len())
}

func TestAccumulator_DrainReturnsRemainder(t *testing.T) {
	// Given: one accumulated doc below every threshold
	acc := NewAccumulator(10, 1000, 1<<30)
	require.Nil(t, acc.Add(accWrite("d1", 1, 10)))

	// When: draining
	batch := acc.Drain()

	// Then: the remainder comes back, and a second drain is empty
	require.Len(t, batch, 1)
	assert.Nil(t, acc.Drain())
}

func TestAccumulator_ZeroThresholdsUseDefaults(t *testing.T) {
	acc := NewAccumulator(0, 0, 0)
	assert.Equal(t, DefaultBatchMaxDocs, acc.maxDocs)
	assert.Equal(t, DefaultBatchMaxChunks, acc.maxChunks)
	assert.Equal(t, int64(DefaultBatchMaxBytes), acc.maxBytes)
}
