package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:     "ask",
	Short:   "Ask a bot a question using its attached documents",
	Example: `  kb-admin ask --email owner@example.com --bot <bot-id> --question "What is the refund policy?"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		botID, _ := cmd.Flags().GetString("bot")
		question, _ := cmd.Flags().GetString("question")
		showContext, _ := cmd.Flags().GetInt("show-context")

		ctx := cmd.Context()
		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := lookupUser(ctx, a, email)
		if err != nil {
			return err
		}
		if _, err := a.Bots.Get(ctx, user.ID, botID); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if showContext > 0 {
			chunks, err := a.RAG.Retrieve(ctx, user.ID, botID, question, showContext)
			if err != nil {
				return err
			}
			for i, c := range chunks {
				fmt.Fprintf(out, "[%d] %s #%d (score %.4f)\n", i+1, c.FileName, c.ChunkIndex, c.Score)
			}
			fmt.Fprintln(out)
		}

		answer := a.RAG.Answer(ctx, user.ID, botID, question)
		fmt.Fprintln(out, answer.Text)
		return nil
	},
}

func init() {
	askCmd.Flags().String("email", "", "owner's email")
	askCmd.Flags().String("bot", "", "bot ID")
	askCmd.Flags().StringP("question", "q", "", "question to ask")
	askCmd.Flags().Int("show-context", 0, "print the N most similar chunks before the answer")
	for _, name := range []string{"email", "bot", "question"} {
		_ = askCmd.MarkFlagRequired(name)
	}
}
