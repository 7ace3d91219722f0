package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero query", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero chunk", []float32{1, 1}, []float32{0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestTopK_OrdersByScoreAndKeepsTies(t *testing.T) {
	chunks := []Chunk{
		{ID: "low", Vector: []float32{0, 1}},
		{ID: "tie-a", Vector: []float32{1, 1}},
		{ID: "best", Vector: []float32{1, 0}},
		{ID: "tie-b", Vector: []float32{1, 1}},
		{ID: "zero", Vector: []float32{0, 0}},
	}

	for i := 0; i < 5; i++ {
		got, err := TopK([]float32{1, 0}, chunks, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "best", got[0].ID)
		assert.Equal(t, "tie-a", got[1].ID)
		assert.Equal(t, "tie-b", got[2].ID)
	}
}

func TestTopK_FewerChunksThanK(t *testing.T) {
	got, err := TopK([]float32{1}, []Chunk{{ID: "only", Vector: []float32{1}}}, 3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTopK_DimensionMismatch(t *testing.T) {
	_, err := TopK([]float32{1, 0}, []Chunk{{ID: "bad", Vector: []float32{1}}}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
