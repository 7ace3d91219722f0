package chunker

import (
	"fmt"
	"strings"

	"bot-rag-backend/config"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	StrategyWhole     = "whole"
	StrategyRecursive = "recursive"
)

var separators = []string{"\n\n", "\n", "。", "！", "？", ". ", "! ", "? ", "；", "，", " ", ""}

// Chunker 将文档全文切分为若干片段，每个片段单独向量化
type Chunker interface {
	Chunk(text string) ([]string, error)
}

func New(cfg config.ChunkingConfig) (Chunker, error) {
	switch cfg.Strategy {
	case "", StrategyWhole:
		return WholeDocument{}, nil
	case StrategyRecursive:
		return NewRecursive(cfg.ChunkSize, cfg.ChunkOverlap), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", cfg.Strategy)
	}
}

// WholeDocument 整个文档作为一个片段
type WholeDocument struct{}

func (WholeDocument) Chunk(text string) ([]string, error) {
	return []string{text}, nil
}

type Recursive struct {
	splitter textsplitter.TextSplitter
}

func NewRecursive(chunkSize, chunkOverlap int) *Recursive {
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(separators),
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

func (r *Recursive) Chunk(text string) ([]string, error) {
	parts, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("error splitting text: %v", err)
	}

	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, part)
	}
	if len(chunks) == 0 {
		return []string{text}, nil
	}
	return chunks, nil
}
