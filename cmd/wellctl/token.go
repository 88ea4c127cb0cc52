package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/stemsi/wellcheck-backend/internal/service"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue development bearer tokens signed with JWT_SECRET",
}

var tokenStudentCmd = &cobra.Command{
	Use:   "student <student-id>",
	Short: "Issue a student token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid student ID %q: %w", args[0], err)
		}
		schoolID, _ := cmd.Flags().GetInt("school")

		token, err := service.NewAuthService(loadConfig(cmd)).GenerateStudentToken(id, schoolID)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var tokenAdminCmd = &cobra.Command{
	Use:   "admin <admin-id>",
	Short: "Issue an admin token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid admin ID %q: %w", args[0], err)
		}
		schoolID, _ := cmd.Flags().GetInt("school")
		perms, _ := cmd.Flags().GetStringSlice("perm")

		token, err := service.NewAuthService(loadConfig(cmd)).GenerateAdminToken(id, schoolID, perms)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenStudentCmd.Flags().Int("school", 0, "School the student belongs to")

	tokenAdminCmd.Flags().Int("school", 0, "Restrict the admin to this school (0 = platform admin)")
	tokenAdminCmd.Flags().StringSlice("perm", []string{
		service.PermissionInstrumentsRead,
		service.PermissionInstrumentsWrite,
		service.PermissionAnalyticsRead,
		service.PermissionStudentsRead,
	}, "Permissions to embed")

	tokenCmd.AddCommand(tokenStudentCmd)
	tokenCmd.AddCommand(tokenAdminCmd)
}
