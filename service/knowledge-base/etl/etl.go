package etl

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"bot-rag-backend/service/knowledge-base/etl/processor"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrExtractionFailed     = errors.New("failed to extract text")
)

// Extractor 按媒体类型选择处理器提取文本
type Extractor struct {
	processors []processor.Processor
	timeout    time.Duration
}

func NewExtractor(timeout time.Duration, processors ...processor.Processor) *Extractor {
	if len(processors) == 0 {
		processors = []processor.Processor{
			processor.NewTextProcessor(),
			processor.NewPDFProcessor(),
			processor.NewDOCXProcessor(),
		}
	}
	return &Extractor{
		processors: processors,
		timeout:    timeout,
	}
}

// NormalizeMediaType 去掉参数并转为小写，如 "text/plain; charset=utf-8" -> "text/plain"
func NormalizeMediaType(mediaType string) string {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return parsed
}

func (e *Extractor) Supports(mediaType string) bool {
	return e.find(NormalizeMediaType(mediaType)) != nil
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mediaType string) (string, error) {
	p := e.find(NormalizeMediaType(mediaType))
	if p == nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := p.Extract(ctx, data)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, r.err)
		}
		return r.text, nil
	}
}

func (e *Extractor) find(mediaType string) processor.Processor {
	for _, p := range e.processors {
		if p.CanProcess(mediaType) {
			return p
		}
	}
	return nil
}
