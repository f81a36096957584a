package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/config"
	"github.com/kanbanx/kanbanx/internal/db"
	"github.com/kanbanx/kanbanx/internal/models"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent management commands",
	}

	cmd.AddCommand(newAgentCreateCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentTokenCmd())
	return cmd
}

func newAgentCreateCmd() *cobra.Command {
	var (
		configPath   string
		role         string
		capabilities []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register an AI agent",
		Long:  "Registers an agent with a role and capability set, then prints its access token.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentCreate(cmd, configPath, args[0], role, capabilities)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to KanbanX config file")
	cmd.Flags().StringVarP(&role, "role", "r", models.AgentRolePrep, "agent role (triage, prep, review, merge)")
	cmd.Flags().StringSliceVar(&capabilities, "capabilities", models.AllCapabilities, "capabilities to grant")
	return cmd
}

func runAgentCreate(cmd *cobra.Command, configPath, name, role string, capabilities []string) error {
	if !models.ValidAgentRole(role) {
		return fmt.Errorf("agent: invalid role %q (valid: %s)", role, strings.Join(models.AgentRoles, ", "))
	}

	gormDB, cfg, err := connectWithConfig(configPath)
	if err != nil {
		return err
	}

	agent := models.Agent{
		ID:       uuid.NewString(),
		Name:     name,
		Role:     role,
		IsActive: true,
	}
	if err := agent.SetCapabilities(capabilities); err != nil {
		return err
	}
	if err := gormDB.Create(&agent).Error; err != nil {
		return fmt.Errorf("agent: create %q: %w", name, err)
	}

	token, err := issueAgentToken(gormDB, cfg, &agent)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created agent %q (%s) with role %s\n", name, agent.ID, role)
	fmt.Fprintf(out, "Token (valid %s): %s\n", cfg.Auth.AgentTokenTTL, token)
	return nil
}

func newAgentListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			var agents []models.Agent
			if err := gormDB.Order("created_at ASC").Find(&agents).Error; err != nil {
				return fmt.Errorf("agent: list: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROLE\tACTIVE\tLAST ACTIVE\tID")
			for _, a := range agents {
				last := "never"
				if a.LastActive != nil {
					last = a.LastActive.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", a.Name, a.Role, a.IsActive, last, a.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to KanbanX config file")
	return cmd
}

func newAgentTokenCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "token <agent-id>",
		Short: "Issue a fresh token for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, cfg, err := connectWithConfig(configPath)
			if err != nil {
				return err
			}

			var agent models.Agent
			if err := gormDB.Where("id = ?", args[0]).First(&agent).Error; err != nil {
				return fmt.Errorf("agent: find %s: %w", args[0], err)
			}

			token, err := issueAgentToken(gormDB, cfg, &agent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token (valid %s): %s\n", cfg.Auth.AgentTokenTTL, token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to KanbanX config file")
	return cmd
}

// connectWithConfig is connectFromConfig but also returns the loaded
// config, for commands that need auth settings.
func connectWithConfig(configPath string) (*gorm.DB, *config.Config, error) {
	godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return gormDB, cfg, nil
}

// issueAgentToken issues a fresh JWT for the agent and records its
// fingerprint on the agent row, so operators can tell which credential
// is current.
func issueAgentToken(gormDB *gorm.DB, cfg *config.Config, agent *models.Agent) (string, error) {
	tokens, err := auth.NewTokens(auth.TokensOpts{
		Secret:   cfg.Auth.JWTSecret,
		HumanTTL: cfg.Auth.HumanTokenTTL,
		AgentTTL: cfg.Auth.AgentTokenTTL,
	})
	if err != nil {
		return "", err
	}
	token, err := tokens.IssueAgent(agent)
	if err != nil {
		return "", err
	}

	hash := auth.FingerprintToken(token)
	if err := gormDB.Model(&models.Agent{}).Where("id = ?", agent.ID).
		Update("token_hash", hash).Error; err != nil {
		return "", fmt.Errorf("agent: record token hash for %s: %w", agent.ID, err)
	}
	agent.TokenHash = hash
	return token, nil
}
