package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/doctrack/doctrack/internal/config"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/scheduler"
)

// daemonLogger builds the daemon log writer. With log.file configured the
// log rotates via lumberjack; otherwise it goes to stderr.
func daemonLogger() *log.Logger {
	var w io.Writer = os.Stderr
	if file := config.GetString("log.file"); file != "" {
		w = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    config.GetInt("log.max-size-mb"),
			MaxBackups: config.GetInt("log.max-backups"),
			MaxAge:     config.GetInt("log.max-age-days"),
			Compress:   true,
		}
	}
	return log.New(w, "", log.LstdFlags|log.LUTC)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background scheduler",
	Long: "Runs the background task scheduler: dated effectivity and obsolescence,\n" +
		"workflow timeout notices, periodic review reminders, audit chain\n" +
		"verification, and housekeeping. Only one daemon may run per workspace.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := daemonLogger()

		eng, store, err := buildEngine(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		// One daemon per workspace. The lock file sits next to the database so
		// two daemons on the same data always collide.
		lock := flock.New(filepath.Join(filepath.Dir(store.Path()), "daemon.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire daemon lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another daemon is already running for %s", store.Path())
		}
		defer func() { _ = lock.Unlock() }()

		dispatcher := notify.NewDispatcher(config.GetString("notify.routes"), logger)
		sched := scheduler.New(eng, dispatcher, scheduler.Config{
			PeriodicReviewLookaheadDays: config.GetInt("scheduler.periodic-review-lookahead-days"),
			TaskResultRetentionDays:     config.GetInt("scheduler.task-result-retention-days"),
			MaxConcurrentTasks:          config.GetInt("scheduler.max-concurrent-tasks"),
			Logger:                      logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Printf("daemon: started (db=%s pid=%d)", store.Path(), os.Getpid())
		err = sched.Run(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Printf("daemon: shutting down")
			// Give in-flight tasks a moment to record their results.
			time.Sleep(100 * time.Millisecond)
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
