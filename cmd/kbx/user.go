package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		configPath string
		role       string
		password   string
	)

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(cmd, configPath, args[0], role, password)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to KanbanX config file")
	cmd.Flags().StringVarP(&role, "role", "r", models.RoleUser, "user role (user or admin)")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted interactively if omitted)")
	return cmd
}

func runUserCreate(cmd *cobra.Command, configPath, username, role, password string) error {
	if role != models.RoleUser && role != models.RoleAdmin {
		return fmt.Errorf("user: invalid role %q", role)
	}

	if password == "" {
		var err error
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}
	if len(password) < 8 {
		return fmt.Errorf("user: password must be at least 8 characters")
	}

	gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	if err := gormDB.Create(&user).Error; err != nil {
		return fmt.Errorf("user: create %q: %w", username, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (%s)\n", role, username, user.ID)
	return nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("user: no terminal for password prompt (use --password)")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("user: read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("user: read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("user: passwords do not match")
	}
	return strings.TrimSpace(string(first)), nil
}

func newUserListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			var users []models.User
			if err := gormDB.Order("created_at ASC").Find(&users).Error; err != nil {
				return fmt.Errorf("user: list: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tROLE\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.Username, u.Role, u.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to KanbanX config file")
	return cmd
}
