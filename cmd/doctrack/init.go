package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/doctrack/doctrack/internal/storage/sqlite"
	"github.com/doctrack/doctrack/internal/workspace"
)

const configTemplate = `# doctrack configuration
# organization:
#   name: Acme Pharma
# workflow:
#   review-due-days: 30
#   approval-due-days: 14
# notify:
#   routes: .doctrack/routes.yaml
# placeholders:
#   extra:
#     COMPANY_ADDRESS: 1 Main St
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a doctrack workspace in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir := filepath.Join(cwd, workspace.DirName)
		if _, err := os.Stat(filepath.Join(dir, workspace.DatabaseFile)); err == nil {
			return fmt.Errorf("workspace already initialized at %s", dir)
		}
		if err := os.MkdirAll(filepath.Join(dir, workspace.FilesDirName), 0o750); err != nil {
			return err
		}

		store, err := sqlite.New(cmd.Context(), filepath.Join(dir, workspace.DatabaseFile))
		if err != nil {
			return err
		}
		defer store.Close()

		configPath := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := os.WriteFile(configPath, []byte(configTemplate), 0o640); err != nil {
				return err
			}
		}

		fmt.Printf("Initialized doctrack workspace at %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
