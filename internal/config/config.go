// Package config wraps the viper configuration singleton for doctrack.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .doctrack/config.yaml > ~/.config/doctrack/config.yaml.
	configFileSet := false

	// Walk up from CWD to find the project config so commands work from
	// subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".doctrack", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "doctrack", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file,
	// e.g. DOCTRACK_DB, DOCTRACK_ACTOR, DOCTRACK_WORKFLOW_REVIEW_DUE_DAYS.
	v.SetEnvPrefix("DOCTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("json", false)

	v.SetDefault("organization.name", "")
	v.SetDefault("system.name", "doctrack")

	v.SetDefault("files.root", "")

	// Workflow deadlines, in days from initiation.
	v.SetDefault("workflow.review-due-days", 30)
	v.SetDefault("workflow.approval-due-days", 14)

	// Scheduler tuning. Task cadences themselves are fixed in the registry;
	// these knobs cover lookahead and retention.
	v.SetDefault("scheduler.periodic-review-lookahead-days", 14)
	v.SetDefault("scheduler.task-result-retention-days", 30)
	v.SetDefault("scheduler.max-concurrent-tasks", 4)

	// Extra placeholder values substituted into generated artifacts,
	// e.g. placeholders.extra.COMPANY_ADDRESS.
	v.SetDefault("placeholders.extra", map[string]string{})

	v.SetDefault("log.file", "")
	v.SetDefault("log.max-size-mb", 10)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("log.max-age-days", 30)

	v.SetDefault("notify.routes", "")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func ensure() {
	if v == nil {
		_ = Initialize()
	}
}

// GetString returns a string configuration value.
func GetString(key string) string {
	ensure()
	return v.GetString(key)
}

// GetBool returns a boolean configuration value.
func GetBool(key string) bool {
	ensure()
	return v.GetBool(key)
}

// GetInt returns an integer configuration value.
func GetInt(key string) int {
	ensure()
	return v.GetInt(key)
}

// GetDuration returns a duration configuration value.
func GetDuration(key string) time.Duration {
	ensure()
	return v.GetDuration(key)
}

// GetStringMapString returns a map configuration value.
func GetStringMapString(key string) map[string]string {
	ensure()
	return v.GetStringMapString(key)
}

// Set overrides a configuration value at runtime. Used by CLI flag binding
// and tests.
func Set(key string, value interface{}) {
	ensure()
	v.Set(key, value)
}

// AllSettings returns the full effective configuration.
func AllSettings() map[string]interface{} {
	ensure()
	return v.AllSettings()
}

// Actor resolves the acting principal: flag value, then config, then OS user.
func Actor(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if actor := GetString("actor"); actor != "" {
		return actor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
