package rag

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/system_id.txt
	systemPromptID string

	//go:embed prompts/system_en.txt
	systemPromptEN string
)

// Templates 面向用户的固定文案，不在运行时翻译
type Templates struct {
	System        string
	ContextLabel  string
	QuestionLabel string
	NoDocuments   string
	Apology       string
}

const (
	LanguageIndonesian = "id"
	LanguageEnglish    = "en"
)

var templates = map[string]Templates{
	LanguageIndonesian: {
		System:        strings.TrimSpace(systemPromptID),
		ContextLabel:  "Konteks",
		QuestionLabel: "Pertanyaan",
		NoDocuments:   "Maaf, saya tidak memiliki dokumen referensi untuk menjawab pertanyaan Anda.",
		Apology:       "Maaf, terjadi kesalahan dalam memproses pertanyaan Anda.",
	},
	LanguageEnglish: {
		System:        strings.TrimSpace(systemPromptEN),
		ContextLabel:  "Context",
		QuestionLabel: "Question",
		NoDocuments:   "Sorry, I don't have any reference documents to answer your question.",
		Apology:       "Sorry, something went wrong while processing your question.",
	},
}

// TemplatesFor 未知语言回退到印尼语
func TemplatesFor(language string) Templates {
	if t, ok := templates[language]; ok {
		return t
	}
	return templates[LanguageIndonesian]
}

func (t Templates) userPrompt(context, query string) string {
	return t.ContextLabel + ":\n" + context + "\n\n" + t.QuestionLabel + ": " + query
}
