package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kanbanx/kanbanx/internal/config"
	"github.com/kanbanx/kanbanx/internal/db"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the task store and seed defaults",
		Long: `Creates or updates every table, then seeds the admin user and the
built-in chat agent if they do not exist. Safe to run multiple times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			return runMigrate(cmd, gormDB)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to KanbanX config file")
	return cmd
}

func runMigrate(cmd *cobra.Command, gormDB *gorm.DB) error {
	out := cmd.OutOrStdout()

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedAdmin(gormDB); err != nil {
		return err
	}
	agent, err := db.SeedChatAgent(gormDB)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Chat agent ready: %s (%s)\n", agent.Name, agent.ID)
	return nil
}

// connectFromConfig loads the config and opens the store. Shared by the
// non-serve commands.
func connectFromConfig(configPath string) (*gorm.DB, error) {
	godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return db.Connect(cfg.Database)
}
