// Package scheduler runs the background maintenance tasks: dated lifecycle
// transitions, workflow timeout notices, periodic review reminders, audit
// chain verification, and housekeeping. Every execution is recorded in the
// relational store so task health is observable next to the documents it
// acts on.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/doctrack/doctrack/internal/engine"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// Task names. The set is closed; RunTask rejects anything else.
const (
	TaskProcessEffectiveDates = "process-effective-dates"
	TaskProcessObsoletion     = "process-obsoletion-dates"
	TaskCheckWorkflowTimeouts = "check-workflow-timeouts"
	TaskProcessPeriodicReview = "process-periodic-reviews"
	TaskSystemHealthCheck     = "system-health-check"
	TaskDailyHealthReport     = "daily-health-report"
	TaskDailyIntegrityCheck   = "daily-integrity-check"
	TaskVerifyAuditChecksums  = "verify-audit-checksums"
	TaskCleanupTaskResults    = "cleanup-task-results"
)

// handler executes one task run and returns a short result status.
type handler func(ctx context.Context) (string, error)

// task pairs a named handler with its cadence.
type task struct {
	name     string
	schedule schedule
	run      handler

	nextRun time.Time
}

// Config carries the scheduler's tunables.
type Config struct {
	// PeriodicReviewLookaheadDays controls how far ahead review reminders go out.
	PeriodicReviewLookaheadDays int
	// TaskResultRetentionDays controls how long task results are kept.
	TaskResultRetentionDays int
	// MaxConcurrentTasks caps simultaneously running tasks.
	MaxConcurrentTasks int
	// PollInterval is how often due tasks are checked. Zero means 30s.
	PollInterval time.Duration

	Logger *log.Logger
}

// Scheduler owns the task registry and the dispatch loop.
type Scheduler struct {
	eng        *engine.Engine
	store      storage.Storage
	dispatcher *notify.Dispatcher
	cfg        Config
	logger     *log.Logger
	tasks      []*task
	sem        *semaphore.Weighted

	// now is swappable in tests.
	now func() time.Time
}

// New builds a scheduler with the standard task registry.
func New(eng *engine.Engine, dispatcher *notify.Dispatcher, cfg Config) *Scheduler {
	if cfg.PeriodicReviewLookaheadDays <= 0 {
		cfg.PeriodicReviewLookaheadDays = 14
	}
	if cfg.TaskResultRetentionDays <= 0 {
		cfg.TaskResultRetentionDays = 30
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Scheduler{
		eng:        eng,
		store:      eng.Store(),
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.tasks = []*task{
		{name: TaskProcessEffectiveDates, schedule: hourlyAt(0), run: s.processEffectiveDates},
		{name: TaskProcessObsoletion, schedule: hourlyAt(15), run: s.processObsoletionDates},
		{name: TaskCheckWorkflowTimeouts, schedule: every(4 * time.Hour), run: s.checkWorkflowTimeouts},
		{name: TaskProcessPeriodicReview, schedule: dailyAt{9, 0}, run: s.processPeriodicReviews},
		{name: TaskSystemHealthCheck, schedule: every(30 * time.Minute), run: s.systemHealthCheck},
		{name: TaskDailyHealthReport, schedule: dailyAt{7, 0}, run: s.dailyHealthReport},
		{name: TaskDailyIntegrityCheck, schedule: dailyAt{2, 0}, run: s.dailyIntegrityCheck},
		{name: TaskVerifyAuditChecksums, schedule: weeklyAt{time.Sunday, 1, 0}, run: s.verifyAuditChecksums},
		{name: TaskCleanupTaskResults, schedule: dailyAt{3, 0}, run: s.cleanupTaskResults},
	}
	return s
}

// TaskNames lists the registered task names in registry order.
func (s *Scheduler) TaskNames() []string {
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.name
	}
	return names
}

// Run executes the dispatch loop until the context is cancelled. Due tasks
// run concurrently up to the configured cap; a slow task never blocks the
// loop, only its own next run.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.now()
	for _, t := range s.tasks {
		t.nextRun = t.schedule.next(start)
	}
	s.logger.Printf("scheduler: started with %d tasks", len(s.tasks))

	g, ctx := errgroup.WithContext(ctx)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := g.Wait(); err != nil {
				s.logger.Printf("scheduler: shutdown with task error: %v", err)
			}
			return ctx.Err()
		case <-ticker.C:
			now := s.now()
			for _, t := range s.tasks {
				if now.Before(t.nextRun) {
					continue
				}
				scheduled := t.nextRun
				t.nextRun = t.schedule.next(now)

				t := t
				g.Go(func() error {
					if err := s.sem.Acquire(ctx, 1); err != nil {
						return nil
					}
					defer s.sem.Release(1)
					s.execute(ctx, t, scheduled)
					return nil
				})
			}
		}
	}
}

// RunTask executes a single task by name, for manual invocation.
func (s *Scheduler) RunTask(ctx context.Context, name string) (string, error) {
	for _, t := range s.tasks {
		if t.name == name {
			status, err := t.run(ctx)
			s.record(ctx, t.name, s.now(), status, err)
			return status, err
		}
	}
	return "", types.NotFound("task", name)
}

// execute runs one task and records the outcome.
func (s *Scheduler) execute(ctx context.Context, t *task, scheduled time.Time) {
	s.logger.Printf("scheduler: running %s", t.name)
	status, err := t.run(ctx)
	if err != nil {
		s.logger.Printf("scheduler: %s failed: %v", t.name, err)
	} else {
		s.logger.Printf("scheduler: %s done: %s", t.name, status)
	}
	s.record(ctx, t.name, scheduled, status, err)
}

func (s *Scheduler) record(ctx context.Context, name string, scheduled time.Time, status string, err error) {
	completed := err == nil
	if err != nil {
		status = fmt.Sprintf("error: %v", err)
	}
	if rerr := s.store.RecordTaskRun(ctx, name, scheduled, completed, status); rerr != nil {
		s.logger.Printf("scheduler: failed to record %s run: %v", name, rerr)
	}
}

// processEffectiveDates releases documents whose effective date has arrived.
func (s *Scheduler) processEffectiveDates(ctx context.Context) (string, error) {
	now := s.now()
	status := types.StatusApprovedPendingEffective
	due, err := s.store.SearchDocuments(ctx, types.DocumentFilter{
		Status:              &status,
		EffectiveOnOrBefore: &now,
	})
	if err != nil {
		return "", err
	}
	processed := 0
	for _, doc := range due {
		if _, err := s.eng.ProcessEffectiveDate(ctx, doc.ID); err != nil {
			s.logger.Printf("scheduler: cannot release %s: %v", doc.Number, err)
			continue
		}
		processed++
	}
	return fmt.Sprintf("released %d of %d due documents", processed, len(due)), nil
}

// processObsoletionDates retires documents whose obsolescence date has arrived.
func (s *Scheduler) processObsoletionDates(ctx context.Context) (string, error) {
	now := s.now()
	status := types.StatusScheduledForObsolescence
	due, err := s.store.SearchDocuments(ctx, types.DocumentFilter{
		Status:                 &status,
		ObsolescenceOnOrBefore: &now,
	})
	if err != nil {
		return "", err
	}
	processed := 0
	for _, doc := range due {
		if _, err := s.eng.ProcessObsolescence(ctx, doc.ID); err != nil {
			s.logger.Printf("scheduler: cannot obsolete %s: %v", doc.Number, err)
			continue
		}
		processed++
	}
	return fmt.Sprintf("obsoleted %d of %d due documents", processed, len(due)), nil
}

// checkWorkflowTimeouts notifies assignees of overdue workflows. At most one
// notice per workflow per day goes out.
func (s *Scheduler) checkWorkflowTimeouts(ctx context.Context) (string, error) {
	now := s.now()
	overdue, err := s.store.GetOverdueWorkflows(ctx, now)
	if err != nil {
		return "", err
	}
	notified := 0
	for _, wf := range overdue {
		sent, err := s.store.MarkOverdueNoticeSent(ctx, wf.ID, now)
		if err != nil {
			return "", err
		}
		if !sent {
			continue
		}
		doc, err := s.store.GetDocument(ctx, wf.DocumentID)
		if err != nil {
			s.logger.Printf("scheduler: overdue workflow %s has no document: %v", wf.ID, err)
			continue
		}
		recipient := wf.CurrentAssignee
		if recipient == "" {
			recipient = wf.InitiatedBy
		}
		detail := map[string]string{"workflow": string(wf.Type)}
		if wf.DueAt != nil {
			detail["due"] = wf.DueAt.Format("2006-01-02")
		}
		s.dispatcher.Dispatch(notify.Notification{
			Event:          notify.EventWorkflowOverdue,
			Recipient:      recipient,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
			Detail:         detail,
		})
		notified++
	}
	return fmt.Sprintf("%d overdue, %d notified", len(overdue), notified), nil
}

// processPeriodicReviews reminds document authors of upcoming periodic
// reviews within the lookahead window.
func (s *Scheduler) processPeriodicReviews(ctx context.Context) (string, error) {
	horizon := s.now().AddDate(0, 0, s.cfg.PeriodicReviewLookaheadDays)
	status := types.StatusEffective
	due, err := s.store.SearchDocuments(ctx, types.DocumentFilter{
		Status:              &status,
		ReviewDueOnOrBefore: &horizon,
	})
	if err != nil {
		return "", err
	}
	for _, doc := range due {
		detail := map[string]string{}
		if doc.NextPeriodicReviewDate != nil {
			detail["review_due"] = doc.NextPeriodicReviewDate.Format("2006-01-02")
		}
		s.dispatcher.Dispatch(notify.Notification{
			Event:          notify.EventPeriodicReviewDue,
			Recipient:      doc.Author,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
			Detail:         detail,
		})
	}
	return fmt.Sprintf("%d reviews due within %d days", len(due), s.cfg.PeriodicReviewLookaheadDays), nil
}

// systemHealthCheck probes the store, verifies the dependency graph is
// acyclic, and summarizes aggregate state.
func (s *Scheduler) systemHealthCheck(ctx context.Context) (string, error) {
	stats, err := s.store.GetStatistics(ctx)
	if err != nil {
		return "", err
	}
	if err := s.auditDependencyGraph(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("ok: %d documents, %d active workflows, %d overdue, graph acyclic",
		stats.TotalDocuments, stats.ActiveWorkflows, stats.OverdueWorkflows), nil
}

// dailyHealthReport mails the daily summary to the administrators contact.
func (s *Scheduler) dailyHealthReport(ctx context.Context) (string, error) {
	stats, err := s.store.GetStatistics(ctx)
	if err != nil {
		return "", err
	}
	s.dispatcher.Dispatch(notify.Notification{
		Event:     notify.EventHealthReport,
		Recipient: "administrators",
		Detail: map[string]string{
			"total_documents":     fmt.Sprintf("%d", stats.TotalDocuments),
			"effective_documents": fmt.Sprintf("%d", stats.EffectiveDocuments),
			"in_review_documents": fmt.Sprintf("%d", stats.InReviewDocuments),
			"active_workflows":    fmt.Sprintf("%d", stats.ActiveWorkflows),
			"overdue_workflows":   fmt.Sprintf("%d", stats.OverdueWorkflows),
			"audit_entries":       fmt.Sprintf("%d", stats.AuditEntries),
		},
	})
	return "report sent", nil
}

// cleanupTaskResults prunes old task results. This is the only physical
// delete in the system; documents, workflows and audit entries are never
// removed.
func (s *Scheduler) cleanupTaskResults(ctx context.Context) (string, error) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.TaskResultRetentionDays)
	n, err := s.store.PruneTaskResults(ctx, cutoff)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pruned %d results older than %d days", n, s.cfg.TaskResultRetentionDays), nil
}
