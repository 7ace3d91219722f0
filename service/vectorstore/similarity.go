package vectorstore

import (
	"fmt"
	"math"
	"sort"
)

type ScoredChunk struct {
	Chunk
	Score float64
}

// CosineSimilarity 任一向量范数为 0 时返回 0
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// TopK 按相似度降序返回前 k 个片段，相似度相同时保持输入顺序
func TopK(query []float32, chunks []Chunk, k int) ([]ScoredChunk, error) {
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		score, err := CosineSimilarity(query, chunk.Vector)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k >= 0 && k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}
