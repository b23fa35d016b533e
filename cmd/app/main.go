package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yanqian/todoauth/internal/domain/auth"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "todoauth",
		Short:        "Authentication and authorization service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	cmd.AddCommand(serveCmd(), setRoleCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initializeApp()
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer cleanup()

	return app.Run(ctx)
}

func setRoleCmd() *cobra.Command {
	var (
		email string
		role  string
	)
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of an existing account",
		Long: `Change the role of an existing account in the configured store.

Use it to promote the first administrator; later changes can go through
PATCH /users/:id/role.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := auth.ParseRole(role)
			if !ok {
				return fmt.Errorf("role must be %q or %q", auth.RoleUser, auth.RoleAdmin)
			}
			admin, cleanup, err := initializeAdminTool()
			if err != nil {
				return fmt.Errorf("wire admin tool: %w", err)
			}
			defer cleanup()

			user, err := admin.SetRoleByEmail(cmd.Context(), email, parsed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", user.Email, user.ID, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email of the account to change")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "Role to assign (user or admin)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
