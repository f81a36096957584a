package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/models"
	"gorm.io/gorm"
)

// ChatAgentName is the display name of the built-in agent that backs
// the natural-language chat endpoint.
const ChatAgentName = "Chat Assistant"

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Agent{},
		&models.Task{},
		&models.AgentLease{},
		&models.AuditEntry{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedAdmin ensures an admin user exists. The password comes from
// KANBANX_ADMIN_PASSWORD; if unset, a random one is generated and
// logged once so the operator can capture it.
func SeedAdmin(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return fmt.Errorf("db: check for admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("KANBANX_ADMIN_PASSWORD")
	generated := false
	if password == "" {
		b := make([]byte, 9)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("db: generate admin password: %w", err)
		}
		password = hex.EncodeToString(b)
		generated = true
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("db: hash admin password: %w", err)
	}

	admin := models.User{
		ID:           uuid.NewString(),
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("db: create admin: %w", err)
	}

	if generated {
		log.Printf("db: created admin user %q with generated password %s (change it after first login)", admin.Username, password)
	} else {
		log.Printf("db: created admin user %q", admin.Username)
	}
	return nil
}

// SeedChatAgent ensures the built-in chat agent exists: role prep with
// the full capability set, so the dispatcher can perform any chat
// action subject to per-operation capability checks.
func SeedChatAgent(db *gorm.DB) (*models.Agent, error) {
	var agent models.Agent
	err := db.Where("name = ?", ChatAgentName).First(&agent).Error
	if err == nil {
		return &agent, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("db: find chat agent: %w", err)
	}

	agent = models.Agent{
		ID:       uuid.NewString(),
		Name:     ChatAgentName,
		Role:     models.AgentRolePrep,
		IsActive: true,
	}
	if err := agent.SetCapabilities(models.AllCapabilities); err != nil {
		return nil, fmt.Errorf("db: encode chat agent capabilities: %w", err)
	}
	now := time.Now()
	agent.LastActive = &now
	if err := db.Create(&agent).Error; err != nil {
		return nil, fmt.Errorf("db: create chat agent: %w", err)
	}
	return &agent, nil
}
