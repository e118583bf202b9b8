package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doctrack/doctrack/internal/engine"
	"github.com/doctrack/doctrack/internal/types"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new draft document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		typeCode, _ := cmd.Flags().GetString("type")
		sourceCode, _ := cmd.Flags().GetString("source")
		description, _ := cmd.Flags().GetString("description")

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		doc, err := eng.CreateDocument(cmd.Context(), actor(), engine.CreateDocumentInput{
			Title:       title,
			Description: description,
			TypeCode:    typeCode,
			SourceCode:  sourceCode,
		})
		if err != nil {
			return err
		}
		return printResult(doc, fmt.Sprintf("Created %s %s (%s)", doc.Number, doc.FullVersion(), doc.ID))
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <document-id> <file>",
	Short: "Attach content to a draft document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		ext := strings.TrimPrefix(filepath.Ext(args[1]), ".")
		key, err := eng.AttachFile(cmd.Context(), args[0], actor(), ext, content)
		if err != nil {
			return err
		}
		return printResult(map[string]string{"file_reference": key},
			fmt.Sprintf("Attached %s as %s", args[1], key))
	},
}

var showCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		doc, err := store.GetDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		plain := fmt.Sprintf("%s %s %q\n  status: %s\n  author: %s",
			doc.Number, doc.FullVersion(), doc.Title, doc.Status.Name(), doc.Author)
		if doc.Reviewer != "" {
			plain += "\n  reviewer: " + doc.Reviewer
		}
		if doc.Approver != "" {
			plain += "\n  approver: " + doc.Approver
		}
		if doc.EffectiveDate != nil {
			plain += "\n  effective: " + doc.EffectiveDate.Format("2006-01-02")
		}
		if doc.NextPeriodicReviewDate != nil {
			plain += "\n  next review: " + doc.NextPeriodicReviewDate.Format("2006-01-02")
		}
		return printResult(doc, plain)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusStr, _ := cmd.Flags().GetString("status")
		typeCode, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		filter := types.DocumentFilter{TypeCode: typeCode, Limit: limit}
		if statusStr != "" {
			st := types.Status(statusStr)
			if !st.IsValid() {
				return fmt.Errorf("invalid status %q", statusStr)
			}
			filter.Status = &st
		}
		docs, err := store.SearchDocuments(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printResult(docs, "")
		}
		for _, d := range docs {
			fmt.Printf("%-16s %-8s %-28s %s\n", d.Number, d.FullVersion(), d.Status, d.Title)
		}
		fmt.Printf("%d document(s)\n", len(docs))
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <document-id>",
	Short: "Download the signed PDF of a released document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		doc, data, err := eng.DownloadSignedCopy(cmd.Context(), args[0], actor())
		if err != nil {
			return err
		}
		if out == "" {
			out = fmt.Sprintf("%s-%s.pdf", doc.Number, doc.FullVersion())
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s %s signed copy to %s (%d bytes)\n",
			doc.Number, doc.FullVersion(), out, len(data))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStatistics(cmd.Context())
		if err != nil {
			return err
		}
		plain := fmt.Sprintf(
			"documents: %d total, %d draft, %d in review, %d effective, %d obsolete\nworkflows: %d active, %d overdue\naudit entries: %d",
			stats.TotalDocuments, stats.DraftDocuments, stats.InReviewDocuments,
			stats.EffectiveDocuments, stats.ObsoleteDocuments,
			stats.ActiveWorkflows, stats.OverdueWorkflows, stats.AuditEntries)
		return printResult(stats, plain)
	},
}

func init() {
	createCmd.Flags().String("title", "", "document title (required)")
	createCmd.Flags().String("type", "", "document type code (required)")
	createCmd.Flags().String("source", "", "document source code")
	createCmd.Flags().String("description", "", "document description")
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("type")

	listCmd.Flags().String("status", "", "filter by status")
	listCmd.Flags().String("type", "", "filter by type code")
	listCmd.Flags().Int("limit", 0, "limit results")

	downloadCmd.Flags().StringP("output", "o", "", "output path (default: <number>-<version>.pdf)")

	rootCmd.AddCommand(createCmd, attachCmd, showCmd, listCmd, downloadCmd, statsCmd)
}
