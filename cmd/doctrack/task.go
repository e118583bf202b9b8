package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doctrack/doctrack/internal/config"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/scheduler"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and run background tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List background tasks and their last results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		tasks, err := store.ListScheduledTasks(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printResult(tasks, "")
		}
		if len(tasks) == 0 {
			fmt.Println("no tasks have run yet")
			return nil
		}
		for _, t := range tasks {
			last := "never"
			if t.LastRunAt != nil {
				last = t.LastRunAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-28s runs=%-5d last=%-17s %s\n", t.Name, t.TotalRunCount, last, t.ResultStatus)
		}
		return nil
	},
}

var taskRunCmd = &cobra.Command{
	Use:   "run <task-name>",
	Short: "Run a background task once, immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		dispatcher := notify.NewDispatcher(config.GetString("notify.routes"), nil)
		sched := scheduler.New(eng, dispatcher, scheduler.Config{
			PeriodicReviewLookaheadDays: config.GetInt("scheduler.periodic-review-lookahead-days"),
			TaskResultRetentionDays:     config.GetInt("scheduler.task-result-retention-days"),
			MaxConcurrentTasks:          config.GetInt("scheduler.max-concurrent-tasks"),
		})

		status, err := sched.RunTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(map[string]string{"task": args[0], "status": status},
			fmt.Sprintf("%s: %s", args[0], status))
	},
}

func init() {
	taskCmd.AddCommand(taskListCmd, taskRunCmd)
	rootCmd.AddCommand(taskCmd)
}
