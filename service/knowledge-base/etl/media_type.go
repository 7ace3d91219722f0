package etl

import (
	"path/filepath"
	"strings"

	"bot-rag-backend/model"
)

var extensionMediaTypes = map[string]string{
	".txt":  model.MediaTypeText,
	".pdf":  model.MediaTypePDF,
	".docx": model.MediaTypeDOCX,
}

// DetectMediaType 未声明类型或声明为 octet-stream 时按扩展名判断
func DetectMediaType(fileName, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(declared, "application/octet-stream") {
		return declared
	}
	if mediaType, ok := extensionMediaTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return mediaType
	}
	return declared
}
