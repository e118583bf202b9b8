package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/doctrack/doctrack/internal/types"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User and role administration",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		displayName, _ := cmd.Flags().GetString("name")
		roles, _ := cmd.Flags().GetStringSlice("role")
		superuser, _ := cmd.Flags().GetBool("superuser")

		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		u := &types.User{
			ID:          uuid.NewString(),
			Username:    args[0],
			DisplayName: displayName,
			IsActive:    true,
			IsSuperuser: superuser,
			Roles:       roles,
		}
		if err := store.CreateUser(cmd.Context(), u); err != nil {
			return err
		}
		return printResult(u, fmt.Sprintf("Created user %s (%s)", u.Username, u.ID))
	},
}

var roleGrantCmd = &cobra.Command{
	Use:   "grant <user-id> <role>",
	Short: "Grant a role to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := eng.GrantRole(cmd.Context(), actor(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Granted %s to %s\n", args[1], args[0])
		return nil
	},
}

var roleRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id> <role>",
	Short: "Revoke a role from a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := eng.RevokeRole(cmd.Context(), actor(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Revoked %s from %s\n", args[1], args[0])
		return nil
	},
}

var superuserCmd = &cobra.Command{
	Use:   "superuser <grant|revoke> <user-id>",
	Short: "Grant or revoke superuser",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		switch args[0] {
		case "grant":
			err = eng.GrantSuperuser(cmd.Context(), actor(), args[1])
		case "revoke":
			err = eng.RevokeSuperuser(cmd.Context(), actor(), args[1])
		default:
			return fmt.Errorf("expected grant or revoke, got %q", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("Superuser %sed for %s\n", strings.TrimSuffix(args[0], "e"), args[1])
		return nil
	},
}

var typeCmd = &cobra.Command{
	Use:   "type",
	Short: "Document type administration",
}

var typeAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Create a document type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		periodic, _ := cmd.Flags().GetBool("periodic-review")
		interval, _ := cmd.Flags().GetInt("review-interval-months")

		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		dt := &types.DocumentType{
			Code:                   args[0],
			Name:                   name,
			RequiresPeriodicReview: periodic,
			ReviewIntervalMonths:   interval,
		}
		if err := store.CreateDocumentType(cmd.Context(), dt); err != nil {
			return err
		}
		return printResult(dt, fmt.Sprintf("Created document type %s (%s)", dt.Code, dt.Name))
	},
}

var typeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List document types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		dts, err := store.ListDocumentTypes(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printResult(dts, "")
		}
		for _, dt := range dts {
			periodic := ""
			if dt.RequiresPeriodicReview {
				periodic = fmt.Sprintf("periodic review every %d months", dt.ReviewIntervalMonths)
			}
			fmt.Printf("%-8s %-40s %s\n", dt.Code, dt.Name, periodic)
		}
		return nil
	},
}

var sourceAddCmd = &cobra.Command{
	Use:   "source-add <code>",
	Short: "Create a document source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		verification, _ := cmd.Flags().GetBool("requires-verification")

		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		ds := &types.DocumentSource{
			Code:                 args[0],
			Name:                 name,
			RequiresVerification: verification,
		}
		if err := store.CreateDocumentSource(cmd.Context(), ds); err != nil {
			return err
		}
		return printResult(ds, fmt.Sprintf("Created document source %s (%s)", ds.Code, ds.Name))
	},
}

func init() {
	userAddCmd.Flags().String("name", "", "display name")
	userAddCmd.Flags().StringSlice("role", nil, "initial roles (viewer, author, reviewer, approver, quality_admin)")
	userAddCmd.Flags().Bool("superuser", false, "create as superuser")
	userCmd.AddCommand(userAddCmd, roleGrantCmd, roleRevokeCmd)

	typeAddCmd.Flags().String("name", "", "type display name (required)")
	_ = typeAddCmd.MarkFlagRequired("name")
	typeAddCmd.Flags().Bool("periodic-review", false, "documents of this type require periodic review")
	typeAddCmd.Flags().Int("review-interval-months", 24, "default periodic review interval")
	typeCmd.AddCommand(typeAddCmd, typeListCmd)

	sourceAddCmd.Flags().String("name", "", "source display name (required)")
	_ = sourceAddCmd.MarkFlagRequired("name")
	sourceAddCmd.Flags().Bool("requires-verification", false, "documents from this source require verification")

	rootCmd.AddCommand(userCmd, superuserCmd, typeCmd, sourceAddCmd)
}
