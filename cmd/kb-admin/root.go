package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"bot-rag-backend/app"
	"bot-rag-backend/config"
	"bot-rag-backend/model"
	"bot-rag-backend/utils"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kb-admin",
	Short: "Administer bot knowledge bases from the terminal",
	Long: `kb-admin indexes documents into a bot and queries bots without going
through the HTTP API. It uses the same configuration file as the server.`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")

	rootCmd.AddCommand(uploadDocumentCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(toolsCmd)
}

// loadApp 读取配置并组装服务，调用方负责 Close
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(utils.NewLogger(os.Stderr, cfg.Log.Level, cfg.Server.Mode))
	return app.New(ctx, cfg)
}

func lookupUser(ctx context.Context, a *app.App, email string) (*model.User, error) {
	user, err := a.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %v", email, err)
	}
	return user, nil
}
