package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"bot-rag-backend/utils"

	mcpadapter "github.com/i2y/langchaingo-mcp-adapter"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List or call the MCP tools exposed by a running server",
	Example: `  kb-admin tools --url http://localhost:8080/api/mcp --token $TOKEN
  kb-admin tools --url http://localhost:8080/api/mcp --token $TOKEN \
    --call ask_bot --args '{"bot_id":"<bot-id>","question":"Opening hours?"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("KB_ADMIN_TOKEN")
		}
		call, _ := cmd.Flags().GetString("call")
		input, _ := cmd.Flags().GetString("args")

		ctx := cmd.Context()
		mcpTools, closeClient, err := loadMCPTools(ctx, url, token)
		if err != nil {
			return err
		}
		defer closeClient()

		if call == "" {
			listTools(cmd.OutOrStdout(), mcpTools)
			return nil
		}

		tool := findTool(mcpTools, call)
		if tool == nil {
			return fmt.Errorf("unknown tool %q", call)
		}
		result, err := tool.Call(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to call tool %s: %v", call, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	toolsCmd.Flags().String("url", "http://localhost:8080/api/mcp", "MCP endpoint of the server")
	toolsCmd.Flags().String("token", "", "JWT of the calling user, defaults to $KB_ADMIN_TOKEN")
	toolsCmd.Flags().String("call", "", "tool to call, lists the tools when empty")
	toolsCmd.Flags().String("args", "{}", "tool arguments as JSON")
}

// loadMCPTools 连接 MCP 服务端并把工具转换为 langchaingo 工具
func loadMCPTools(ctx context.Context, url, token string) ([]tools.Tool, func(), error) {
	mcpClient, err := client.NewStreamableHttpClient(url,
		transport.WithHTTPBasicClient(utils.DefaultHTTPClient()),
		transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mcp client: %v", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to init connection to the mcp server: %v", err)
	}
	closeClient := func() { _ = mcpClient.Close() }

	// 初始化与 MCP 服务端的连接
	adapter, err := mcpadapter.New(mcpClient)
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("failed to create mcp adapter: %v", err)
	}

	mcpTools, err := adapter.Tools()
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("failed to get mcp tools: %v", err)
	}
	return mcpTools, closeClient, nil
}

func listTools(w io.Writer, mcpTools []tools.Tool) {
	for _, t := range mcpTools {
		fmt.Fprintf(w, "%s\t%s\n", t.Name(), t.Description())
	}
}

func findTool(mcpTools []tools.Tool, name string) tools.Tool {
	for _, t := range mcpTools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}
