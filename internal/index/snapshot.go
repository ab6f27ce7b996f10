// Package index builds and queries the per-domain semantic document indexes:
// chunking, embedding, top-K cosine search, and the on-disk cache.
package index

import (
	"container/heap"
	"math"

	"github.com/nkosler/opsdesk/internal/docs"
)

// Domain identifies one specialist document collection.
type Domain string

const (
	DomainIT      Domain = "it"
	DomainFinance Domain = "finance"
)

// Valid reports whether d names a supported domain.
func (d Domain) Valid() bool {
	return d == DomainIT || d == DomainFinance
}

// Snapshot is one immutable build of a domain index: an embedding matrix with
// one L2-normalized row per chunk, parallel to the chunk list. Row i always
// corresponds to Chunks[i]; a rebuild replaces the whole snapshot atomically.
type Snapshot struct {
	Vectors  [][]float32
	Chunks   []docs.Chunk
	Degraded bool
}

// Empty reports whether the snapshot holds no searchable content.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Chunks) == 0
}

// Search returns up to topK chunks ranked by descending dot product against
// the (normalized) query vector, scores attached. Row vectors are normalized
// at build time, so the dot product is the cosine similarity.
func (s *Snapshot) Search(query []float32, topK int) []docs.Chunk {
	if s.Empty() || topK <= 0 || len(query) == 0 {
		return nil
	}

	h := &rowScoreHeap{}
	heap.Init(h)

	for i, row := range s.Vectors {
		score := dot(query, row)
		if h.Len() < topK {
			heap.Push(h, rowScore{Row: i, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = rowScore{Row: i, Score: score}
			heap.Fix(h, 0)
		}
	}

	results := make([]docs.Chunk, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		item := heap.Pop(h).(rowScore)
		c := s.Chunks[item.Row]
		c.Score = item.Score
		results[i] = c
	}
	return results
}

// Normalize scales v to unit length in place and returns it. A zero vector is
// returned unchanged; it ranks below everything.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}

func dot(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// rowScore pairs a matrix row with its similarity during the scan phase.
type rowScore struct {
	Row   int
	Score float32
}

// rowScoreHeap is a min-heap of rowScore ordered by Score, used to track
// top-K candidates during a search scan.
type rowScoreHeap []rowScore

func (h rowScoreHeap) Len() int            { return len(h) }
func (h rowScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h rowScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rowScoreHeap) Push(x interface{}) { *h = append(*h, x.(rowScore)) }
func (h *rowScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
