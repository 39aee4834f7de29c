package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// snapshotMagic identifies an eywa vector snapshot file. The magic is
// followed by a uint32 little-endian header length, the gob-encoded
// snapshotHeader, and the serialized graph, all in one file.
const snapshotMagic = "eywahnsw1"

// snapshotHeader carries everything needed to interpret the graph stream
// that follows it: the store configuration and the chunk-ID key table.
type snapshotHeader struct {
	Config  VectorStoreConfig
	Keys    map[string]uint64
	NextKey uint64
}

// HNSWStore implements VectorStore on top of the coder/hnsw graph.
//
// The graph addresses nodes by uint64 key, so the store keeps a
// bidirectional chunk-ID mapping alongside it. Deletion is lazy: a
// deleted node stays in the graph but loses its mapping, which makes
// it invisible to Search and Contains. coder/hnsw cannot remove the
// last node of a graph, and lazy deletion sidesteps that entirely.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	chunkToKey map[string]uint64
	keyToChunk map[uint64]string
	nextKey    uint64

	closed bool
}

// NewHNSWStore creates an in-memory HNSW vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	return &HNSWStore{
		graph:      newGraph(cfg),
		config:     cfg,
		chunkToKey: make(map[string]uint64),
		keyToChunk: make(map[uint64]string),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if cfg.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25 // ~1/ln(M) for the default M
	return g
}

// Add inserts vectors keyed by chunk ID. Re-adding an existing ID
// orphans the old node and inserts a fresh one under a new key.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed()
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		s.insertLocked(id, vectors[i])
	}
	return nil
}

func (s *HNSWStore) insertLocked(id string, vector []float32) {
	if old, exists := s.chunkToKey[id]; exists {
		delete(s.keyToChunk, old)
		delete(s.chunkToKey, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(vec)
	}

	key := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(key, vec))
	s.chunkToKey[id] = key
	s.keyToChunk[key] = id
}

// Search finds the k nearest neighbors to the query vector. Orphaned
// nodes are filtered out, so fewer than k hits may come back.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errStoreClosed()
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorHit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	nodes := s.graph.Search(q, k)
	hits := make([]*VectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, live := s.keyToChunk[node.Key]
		if !live {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		hits = append(hits, &VectorHit{
			ChunkID:  id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}
	return hits, nil
}

// Delete drops the ID mappings for the given chunks. The graph nodes
// stay behind as orphans until the next full rebuild.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed()
	}

	for _, id := range ids {
		if key, exists := s.chunkToKey[id]; exists {
			delete(s.keyToChunk, key)
			delete(s.chunkToKey, id)
		}
	}
	return nil
}

// AllIDs returns every live chunk ID. Used by the consistency checker.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.chunkToKey))
	for id := range s.chunkToKey {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether a chunk ID is live in the store.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.chunkToKey[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.chunkToKey)
}

// HNSWStats describes the live/orphan split of the graph.
type HNSWStats struct {
	ValidIDs   int // live ID mappings
	GraphNodes int // total graph nodes, orphans included
	Orphans    int // GraphNodes - ValidIDs
}

// Stats returns store statistics.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}
	live := len(s.chunkToKey)
	nodes := s.graph.Len()
	return HNSWStats{ValidIDs: live, GraphNodes: nodes, Orphans: nodes - live}
}

// Save writes the store to a single snapshot file: magic, header
// length, gob header, then the graph stream. The write goes to a temp
// file and is renamed into place so a crash mid-save leaves the
// previous snapshot intact.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errStoreClosed()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	var headerBuf bytes.Buffer
	header := snapshotHeader{
		Config:  s.config,
		Keys:    s.chunkToKey,
		NextKey: s.nextKey,
	}
	if err := gob.NewEncoder(&headerBuf).Encode(header); err != nil {
		return fmt.Errorf("encode snapshot header: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	err = writeSnapshot(file, headerBuf.Bytes(), s.graph)
	if err == nil {
		err = file.Close()
	} else {
		file.Close()
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func writeSnapshot(w io.Writer, header []byte, graph *hnsw.Graph[uint64]) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(header))); err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	return graph.Export(w)
}

// Load replaces the store contents with a snapshot from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed()
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import needs an io.ByteReader, and the buffered
	// reader must be shared with the header decode so no bytes of
	// the graph stream are lost.
	reader := bufio.NewReader(file)
	header, err := readSnapshotHeader(reader)
	if err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}

	graph := newGraph(header.Config)
	if err := graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.config = header.Config
	s.graph = graph
	s.chunkToKey = header.Keys
	s.nextKey = header.NextKey
	s.keyToChunk = make(map[uint64]string, len(header.Keys))
	for id, key := range header.Keys {
		s.keyToChunk[key] = id
	}
	return nil
}

// readSnapshotHeader validates the magic and decodes the header,
// leaving the reader positioned at the start of the graph stream.
func readSnapshotHeader(r io.Reader) (*snapshotHeader, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return nil, fmt.Errorf("not a vector snapshot (magic %q)", magic)
	}

	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var header snapshotHeader
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if header.Keys == nil {
		header.Keys = make(map[string]uint64)
	}
	return &header, nil
}

// Close releases the graph. Further calls on the store fail.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadHNSWStoreDimensions peeks at a snapshot's header and returns its
// vector dimensions without loading the graph. A missing snapshot
// returns 0, meaning the store has never been saved.
func ReadHNSWStoreDimensions(vectorPath string) (int, error) {
	file, err := os.Open(vectorPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	header, err := readSnapshotHeader(bufio.NewReader(file))
	if err != nil {
		return 0, fmt.Errorf("read snapshot header: %w", err)
	}
	return header.Config.Dimensions, nil
}

func errStoreClosed() error {
	return fmt.Errorf("vector store is closed")
}

var _ VectorStore = (*HNSWStore)(nil)

// normalizeVectorInPlace scales a vector to unit length. Zero vectors
// are left as-is.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps a distance onto a [0, 1] similarity score.
// Cosine distance spans [0, 2], so score = 1 - d/2; for L2 the score
// decays as 1/(1+d).
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
