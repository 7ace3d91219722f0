package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/tools"
)

type fakeTool struct {
	name string
}

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Description() string { return "description of " + f.name }
func (f fakeTool) Call(_ context.Context, input string) (string, error) {
	return f.name + ":" + input, nil
}

func TestFindAndListTools(t *testing.T) {
	mcpTools := []tools.Tool{fakeTool{name: "ask_bot"}, fakeTool{name: "search_bot_documents"}}

	var buf bytes.Buffer
	listTools(&buf, mcpTools)
	assert.Equal(t, "ask_bot\tdescription of ask_bot\nsearch_bot_documents\tdescription of search_bot_documents\n", buf.String())

	tool := findTool(mcpTools, "search_bot_documents")
	require.NotNil(t, tool)
	assert.Equal(t, "search_bot_documents", tool.Name())
	assert.Nil(t, findTool(mcpTools, "missing"))
}

func TestCommandsRequireFlags(t *testing.T) {
	for _, args := range [][]string{
		{"ask", "--email", "owner@example.com"},
		{"upload-document", "--bot", "b1"},
	} {
		rootCmd.SetArgs(args)
		rootCmd.SetOut(&bytes.Buffer{})
		rootCmd.SetErr(&bytes.Buffer{})
		err := rootCmd.Execute()
		assert.ErrorContains(t, err, "required flag")
	}
}
