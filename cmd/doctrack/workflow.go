package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/doctrack/doctrack/internal/engine"
	"github.com/doctrack/doctrack/internal/types"
)

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s (want YYYY-MM-DD): %w", name, err)
	}
	return &t, nil
}

func resultLine(res *engine.Result, verb string) string {
	line := fmt.Sprintf("%s; now %s", verb, res.NewState.Name())
	for _, w := range res.Warnings {
		line += "\n  warning: " + w
	}
	return line
}

var submitCmd = &cobra.Command{
	Use:   "submit <document-id>",
	Short: "Submit a draft for review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer, _ := cmd.Flags().GetString("reviewer")
		approver, _ := cmd.Flags().GetString("approver")
		comment, _ := cmd.Flags().GetString("message")

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.SubmitForReview(cmd.Context(), args[0], actor(), reviewer, approver, comment)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Submitted for review"))
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review workflow actions",
}

var reviewAcceptCmd = &cobra.Command{
	Use:   "accept <document-id>",
	Short: "Accept an assigned review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("message")
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.AcceptReview(cmd.Context(), args[0], actor(), comment)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Review accepted"))
	},
}

var reviewCompleteCmd = &cobra.Command{
	Use:   "complete <document-id>",
	Short: "Complete a review with a verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		approve, _ := cmd.Flags().GetBool("approve")
		reject, _ := cmd.Flags().GetBool("reject")
		comment, _ := cmd.Flags().GetString("message")
		if approve == reject {
			return fmt.Errorf("exactly one of --approve or --reject is required")
		}

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.CompleteReview(cmd.Context(), args[0], actor(), approve, comment)
		if err != nil {
			return err
		}
		verb := "Review approved"
		if reject {
			verb = "Review rejected"
		}
		return printResult(res, resultLine(res, verb))
	},
}

var approvalCmd = &cobra.Command{
	Use:   "approval",
	Short: "Approval workflow actions",
}

var approvalRouteCmd = &cobra.Command{
	Use:   "route <document-id>",
	Short: "Route a reviewed document for approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		approver, _ := cmd.Flags().GetString("approver")
		comment, _ := cmd.Flags().GetString("message")

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.RouteForApproval(cmd.Context(), args[0], actor(), approver, comment)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Routed for approval"))
	},
}

var approvalAcceptCmd = &cobra.Command{
	Use:   "accept <document-id>",
	Short: "Accept an assigned approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("message")
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.AcceptApproval(cmd.Context(), args[0], actor(), comment)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Approval accepted"))
	},
}

var approvalSignCmd = &cobra.Command{
	Use:   "sign <document-id>",
	Short: "Approve a document with an effective date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("message")
		effectiveDate, err := parseDateFlag(cmd, "effective-date")
		if err != nil {
			return err
		}

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.ApproveDocument(cmd.Context(), args[0], actor(), effectiveDate, comment)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Approved"))
	},
}

var approvalRejectCmd = &cobra.Command{
	Use:   "reject <document-id>",
	Short: "Reject a document under approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("message")
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.RejectApproval(cmd.Context(), args[0], actor(), comment)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Approval rejected"))
	},
}

var obsoleteCmd = &cobra.Command{
	Use:   "obsolete <document-id>",
	Short: "Obsolete an effective document, immediately or on a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("message")
		when, err := parseDateFlag(cmd, "date")
		if err != nil {
			return err
		}

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.ScheduleObsolescence(cmd.Context(), args[0], actor(), when, reason)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Obsolescence recorded"))
	},
}

var terminateCmd = &cobra.Command{
	Use:   "terminate <document-id>",
	Short: "Terminate a pre-effective document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("message")
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.TerminateDocument(cmd.Context(), args[0], actor(), reason)
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, "Terminated"))
	},
}

var upversionCmd = &cobra.Command{
	Use:   "upversion <document-id>",
	Short: "Start the next version of an effective document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		major, _ := cmd.Flags().GetBool("major")
		reason, _ := cmd.Flags().GetString("message")
		summary, _ := cmd.Flags().GetString("summary")
		reviewer, _ := cmd.Flags().GetString("reviewer")
		approver, _ := cmd.Flags().GetString("approver")
		bump := engine.BumpMinor
		if major {
			bump = engine.BumpMajor
		}

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.StartVersionWorkflow(cmd.Context(), args[0], actor(), engine.StartVersionInput{
			Bump:             bump,
			ReasonForChange:  reason,
			SummaryOfChanges: summary,
			Reviewer:         reviewer,
			Approver:         approver,
		})
		if err != nil {
			return err
		}
		return printResult(res, resultLine(res, fmt.Sprintf("New draft %s created", res.DocumentID)))
	},
}

var periodicReviewCmd = &cobra.Command{
	Use:   "periodic-review <document-id>",
	Short: "Record a periodic review outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcomeStr, _ := cmd.Flags().GetString("outcome")
		comment, _ := cmd.Flags().GetString("message")
		nextMonths, _ := cmd.Flags().GetInt("next-months")

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.RecordPeriodicReview(cmd.Context(), args[0], actor(),
			types.PeriodicReviewOutcome(outcomeStr), comment, nextMonths)
		if err != nil {
			return err
		}
		plain := "Periodic review recorded"
		if res.RequiresUpversion {
			plain += "; start a new version with 'doctrack upversion'"
		}
		return printResult(res, plain)
	},
}

func init() {
	submitCmd.Flags().String("reviewer", "", "assigned reviewer (required)")
	submitCmd.Flags().String("approver", "", "assigned approver (required)")
	_ = submitCmd.MarkFlagRequired("reviewer")
	_ = submitCmd.MarkFlagRequired("approver")

	reviewCompleteCmd.Flags().Bool("approve", false, "approve the document")
	reviewCompleteCmd.Flags().Bool("reject", false, "reject back to draft")
	reviewCmd.AddCommand(reviewAcceptCmd, reviewCompleteCmd)

	approvalRouteCmd.Flags().String("approver", "", "approver (default: the one named at submission)")
	approvalSignCmd.Flags().String("effective-date", "", "effective date YYYY-MM-DD")
	_ = approvalSignCmd.MarkFlagRequired("effective-date")
	approvalCmd.AddCommand(approvalRouteCmd, approvalAcceptCmd, approvalSignCmd, approvalRejectCmd)

	obsoleteCmd.Flags().String("date", "", "obsolescence date YYYY-MM-DD (default: today)")

	upversionCmd.Flags().Bool("major", false, "major version bump (default: minor)")
	upversionCmd.Flags().String("summary", "", "summary of changes (required)")
	_ = upversionCmd.MarkFlagRequired("summary")
	upversionCmd.Flags().String("reviewer", "", "submit the new draft for review to this reviewer")
	upversionCmd.Flags().String("approver", "", "approver for the submitted draft")

	periodicReviewCmd.Flags().String("outcome", "", "confirmed, minor_upversion, or major_upversion (required)")
	_ = periodicReviewCmd.MarkFlagRequired("outcome")
	periodicReviewCmd.Flags().Int("next-months", 0, "months until next review (default: type interval)")

	for _, c := range []*cobra.Command{
		submitCmd, reviewAcceptCmd, reviewCompleteCmd,
		approvalRouteCmd, approvalAcceptCmd, approvalSignCmd, approvalRejectCmd,
		obsoleteCmd, terminateCmd, upversionCmd, periodicReviewCmd,
	} {
		c.Flags().StringP("message", "m", "", "comment recorded with the action")
	}

	rootCmd.AddCommand(submitCmd, reviewCmd, approvalCmd, obsoleteCmd,
		terminateCmd, upversionCmd, periodicReviewCmd)
}
