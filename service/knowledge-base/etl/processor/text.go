package processor

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"bot-rag-backend/model"

	"github.com/tmc/langchaingo/documentloaders"
)

// TextProcessor 纯文本处理器
type TextProcessor struct{}

var _ Processor = (*TextProcessor)(nil)

func NewTextProcessor() *TextProcessor {
	return &TextProcessor{}
}

func (p *TextProcessor) CanProcess(mediaType string) bool {
	return mediaType == model.MediaTypeText
}

func (p *TextProcessor) Extract(ctx context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid utf-8")
	}

	docs, err := documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("error loading text: %v", err)
	}
	return joinPages(docs)
}
