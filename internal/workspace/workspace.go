// Package workspace discovers the .doctrack/ directory that anchors a
// document workspace: the database, the managed file store, and the
// workspace config all live under it.
package workspace

import (
	"os"
	"path/filepath"
)

// DirName is the workspace directory name searched for in the tree.
const DirName = ".doctrack"

// DatabaseFile is the database filename inside the workspace directory.
const DatabaseFile = "doctrack.db"

// FilesDirName is the managed file store directory inside the workspace.
const FilesDirName = "files"

// FindDir finds the .doctrack/ directory in the current directory tree.
// DOCTRACK_DIR overrides the search. Returns empty string if not found.
func FindDir() string {
	if dir := os.Getenv("DOCTRACK_DIR"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return ""
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// FindDatabasePath finds the doctrack database in the current directory tree.
// DOCTRACK_DB overrides discovery entirely. Returns empty string if no
// workspace exists.
func FindDatabasePath() string {
	if envDB := os.Getenv("DOCTRACK_DB"); envDB != "" {
		abs, err := filepath.Abs(envDB)
		if err != nil {
			return ""
		}
		return abs
	}
	dir := FindDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, DatabaseFile)
}

// FilesRoot returns the managed file store root for a workspace directory.
func FilesRoot(workspaceDir string) string {
	return filepath.Join(workspaceDir, FilesDirName)
}
