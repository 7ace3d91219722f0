package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"bot-rag-backend/model"
)

const documentXMLPath = "word/document.xml"

// DOCXProcessor 从 word/document.xml 中提取段落文本
type DOCXProcessor struct{}

var _ Processor = (*DOCXProcessor)(nil)

func NewDOCXProcessor() *DOCXProcessor {
	return &DOCXProcessor{}
}

func (p *DOCXProcessor) CanProcess(mediaType string) bool {
	return mediaType == model.MediaTypeDOCX
}

func (p *DOCXProcessor) Extract(ctx context.Context, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("error opening docx archive: %v", err)
	}

	for _, file := range reader.File {
		if file.Name != documentXMLPath {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("error opening %s: %v", documentXMLPath, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("error reading %s: %v", documentXMLPath, err)
		}
		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("%s not found in archive", documentXMLPath)
}

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("error parsing %s: %v", documentXMLPath, err)
	}

	var result strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			result.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				result.WriteString(t.Content)
			}
		}
	}

	text := strings.TrimSpace(result.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
