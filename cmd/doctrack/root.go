package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/doctrack/doctrack"
	"github.com/doctrack/doctrack/internal/config"
	"github.com/doctrack/doctrack/internal/engine"
	"github.com/doctrack/doctrack/internal/files"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage/sqlite"
	"github.com/doctrack/doctrack/internal/workspace"
)

var (
	flagDB    string
	flagActor string
	flagJSON  bool
)

var rootCmd = &cobra.Command{
	Use:           "doctrack",
	Short:         "Controlled document lifecycle tracker",
	Long:          "doctrack manages controlled documents through review, approval, effectivity and obsolescence,\nwith a tamper-evident audit trail.",
	Version:       doctrack.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Initialize()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database file path (default: discovered .doctrack/doctrack.db)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "acting user (default: config or $USER)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output JSON")
}

// actor resolves the acting principal for the current invocation.
func actor() string {
	return config.Actor(flagActor)
}

// jsonOutput reports whether results should print as JSON.
func jsonOutput() bool {
	return flagJSON || config.GetBool("json")
}

// databasePath resolves the database location: flag, then config/env, then
// workspace discovery.
func databasePath() (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	if db := config.GetString("db"); db != "" {
		return db, nil
	}
	if path := workspace.FindDatabasePath(); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("no doctrack workspace found; run 'doctrack init' first")
}

// openStorage opens the discovered database.
func openStorage(ctx context.Context) (doctrack.Storage, error) {
	path, err := databasePath()
	if err != nil {
		return nil, err
	}
	return sqlite.New(ctx, path)
}

// filesRoot resolves the managed file store root, defaulting to the files/
// directory next to the database.
func filesRoot(dbPath string) string {
	if root := config.GetString("files.root"); root != "" {
		return root
	}
	return filepath.Join(filepath.Dir(dbPath), workspace.FilesDirName)
}

// buildEngine wires storage, file store, dispatcher, and the engine. The
// caller owns closing the returned storage.
func buildEngine(ctx context.Context, logger *log.Logger) (*engine.Engine, doctrack.Storage, error) {
	store, err := openStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	fileStore, err := files.NewStore(filesRoot(store.Path()))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	dispatcher := notify.NewDispatcher(config.GetString("notify.routes"), logger)
	eng := engine.New(store, fileStore, dispatcher, engine.Options{
		Organization:      config.GetString("organization.name"),
		SystemName:        config.GetString("system.name"),
		ReviewDueDays:     config.GetInt("workflow.review-due-days"),
		ApprovalDueDays:   config.GetInt("workflow.approval-due-days"),
		ExtraPlaceholders: config.GetStringMapString("placeholders.extra"),
		Logger:            logger,
	})
	return eng, store, nil
}

// printResult renders a command result as JSON or a short line.
func printResult(v interface{}, plain string) error {
	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(plain)
	return nil
}
