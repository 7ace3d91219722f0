package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/schema"
)

// ErrNoText 文件中没有可提取的文本
var ErrNoText = errors.New("no text content")

// Processor 单一文件类型的文本提取器
type Processor interface {
	// 判断是否支持传入的媒体类型
	CanProcess(mediaType string) bool

	Extract(ctx context.Context, data []byte) (string, error)
}

// joinPages 合并 loader 输出的页面，跳过空页
func joinPages(docs []schema.Document) (string, error) {
	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		content := strings.TrimSpace(doc.PageContent)
		if content == "" {
			continue
		}
		pages = append(pages, content)
	}
	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n\n"), nil
}
