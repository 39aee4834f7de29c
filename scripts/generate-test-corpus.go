//go:build ignore

// Package main generates a synthetic markdown corpus for ingest and
// search benchmarking.
// Usage: go run scripts/generate-test-corpus.go -docs 500 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numDocs   = flag.Int("docs", 500, "Number of documents to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"consensus", "replication", "sharding", "caching", "indexing",
	"compaction", "serialization", "scheduling", "recovery", "snapshotting",
	"partitioning", "batching", "throttling", "encryption", "compression",
}

var subjects = []string{
	"the storage engine", "the write-ahead log", "the query planner",
	"the gossip protocol", "the leader election loop", "the memtable",
	"the bloom filter", "the merge iterator", "the checkpoint routine",
	"the vector index", "the token bucket", "the page cache",
}

var claims = []string{
	"must tolerate partial failures without losing committed writes",
	"amortizes disk seeks by grouping updates into sorted runs",
	"trades write amplification for faster point lookups",
	"keeps tail latency bounded under sustained load",
	"falls back to a full scan when the index is unavailable",
	"uses fencing tokens to guard against stale leaders",
	"rebuilds derived state from the durable log on restart",
	"prefers availability over consistency during a partition",
}

func paragraph(rng *rand.Rand) string {
	var b strings.Builder
	n := 3 + rng.Intn(3)
	for i := 0; i < n; i++ {
		subj := subjects[rng.Intn(len(subjects))]
		claim := claims[rng.Intn(len(claims))]
		fmt.Fprintf(&b, "In practice %s %s. ", subj, claim)
	}
	return b.String()
}

func document(rng *rand.Rand, index int) string {
	topic := topics[rng.Intn(len(topics))]
	var b strings.Builder
	fmt.Fprintf(&b, "# Notes on %s\n\n%s\n\n", topic, paragraph(rng))
	sections := 2 + rng.Intn(4)
	for s := 0; s < sections; s++ {
		sub := topics[rng.Intn(len(topics))]
		fmt.Fprintf(&b, "## %s and %s\n\n%s\n\n", topic, sub, paragraph(rng))
		if rng.Intn(3) == 0 {
			fmt.Fprintf(&b, "### Edge cases\n\n%s\n\n", paragraph(rng))
		}
	}
	fmt.Fprintf(&b, "Document %d of the synthetic corpus.\n", index)
	return b.String()
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	var totalBytes int
	for i := 0; i < *numDocs; i++ {
		content := document(rng, i)
		path := filepath.Join(*outputDir, fmt.Sprintf("doc-%04d.md", i))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		totalBytes += len(content)
	}

	fmt.Printf("generated %d documents (%d KiB) in %s\n", *numDocs, totalBytes/1024, *outputDir)
}
