package processor

import (
	"bytes"
	"context"
	"fmt"

	"bot-rag-backend/model"

	"github.com/tmc/langchaingo/documentloaders"
)

type PDFProcessor struct{}

var _ Processor = (*PDFProcessor)(nil)

func NewPDFProcessor() *PDFProcessor {
	return &PDFProcessor{}
}

func (p *PDFProcessor) CanProcess(mediaType string) bool {
	return mediaType == model.MediaTypePDF
}

// Extract 逐页提取文本，页与页之间以空行分隔
func (p *PDFProcessor) Extract(ctx context.Context, data []byte) (text string, err error) {
	// pdf 解析库遇到损坏文件可能 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error parsing pdf: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	loader := documentloaders.NewPDF(reader, int64(len(data)))

	docs, err := loader.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("error loading pdf: %v", err)
	}
	return joinPages(docs)
}
