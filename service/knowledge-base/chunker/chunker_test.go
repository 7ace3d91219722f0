package chunker

import (
	"strings"
	"testing"

	"bot-rag-backend/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(config.ChunkingConfig{})
	require.NoError(t, err)
	assert.IsType(t, WholeDocument{}, c)

	c, err = New(config.ChunkingConfig{Strategy: StrategyRecursive, ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)
	assert.IsType(t, &Recursive{}, c)

	_, err = New(config.ChunkingConfig{Strategy: "sentences"})
	assert.Error(t, err)
}

func TestWholeDocument(t *testing.T) {
	chunks, err := WholeDocument{}.Chunk("refund policy: 30 days")
	require.NoError(t, err)
	assert.Equal(t, []string{"refund policy: 30 days"}, chunks)
}

func TestRecursive_SplitsLongText(t *testing.T) {
	paragraph := strings.Repeat("word ", 30)
	text := strings.Join([]string{paragraph, paragraph, paragraph}, "\n\n")

	chunks, err := NewRecursive(200, 0).Chunk(text)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 200)
	}
}
