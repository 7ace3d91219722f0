package main

import (
	"fmt"
	"os"
	"path/filepath"

	knowledgebase "bot-rag-backend/service/knowledge-base"
	"bot-rag-backend/service/knowledge-base/etl"

	"github.com/spf13/cobra"
)

var uploadDocumentCmd = &cobra.Command{
	Use:   "upload-document",
	Short: "Index a local file into a bot's knowledge base",
	Example: `  kb-admin upload-document --email owner@example.com --bot <bot-id> --file ./faq.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		botID, _ := cmd.Flags().GetString("bot")
		filePath, _ := cmd.Flags().GetString("file")
		mediaType, _ := cmd.Flags().GetString("media-type")

		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %v", filePath, err)
		}

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

		fileName := filepath.Base(filePath)
		documentID, err := a.Indexer.IndexDocument(ctx, user.ID, botID, knowledgebase.Upload{
			Data:      data,
			FileName:  fileName,
			MediaType: etl.DetectMediaType(fileName, mediaType),
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), documentID)
		return nil
	},
}

func init() {
	uploadDocumentCmd.Flags().String("email", "", "owner's email")
	uploadDocumentCmd.Flags().String("bot", "", "bot ID")
	uploadDocumentCmd.Flags().StringP("file", "f", "", "path to the document")
	uploadDocumentCmd.Flags().String("media-type", "", "media type, detected from the extension when empty")
	for _, name := range []string{"email", "bot", "file"} {
		_ = uploadDocumentCmd.MarkFlagRequired(name)
	}
}
