package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/chat"
	"github.com/kanbanx/kanbanx/internal/models"
	"gorm.io/gorm"
)

// deps carries the wired dependencies into the route handlers.
type deps struct {
	db         *gorm.DB
	tokens     *auth.Tokens
	recorder   *audit.Recorder
	classifier chat.Classifier
	dispatcher *chat.Dispatcher
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, d deps) {
	mw := &auth.Middleware{DB: d.db, Tokens: d.tokens}

	router.GET("/health", handleHealth(d.db))
	router.GET("/", handleRoot())

	api := router.Group("/api")

	// Human authentication.
	authGroup := api.Group("/auth")
	authGroup.POST("/login", handleLogin(d))
	authGroup.POST("/register", mw.RequireHuman(), auth.RequireRole(models.RoleAdmin), handleRegister(d))
	authGroup.GET("/profile", mw.RequireHuman(), handleProfile(d))
	authGroup.PUT("/profile", mw.RequireHuman(), handleProfileUpdate(d))

	// Human board surface.
	tasks := api.Group("/tasks", mw.RequireHuman())
	tasks.GET("", handleBoard(d))
	tasks.POST("", handleTaskCreate(d))
	tasks.GET("/:id", handleTaskGet(d))
	tasks.PUT("/:id", handleTaskUpdate(d))
	tasks.PATCH("/:id/move", handleTaskMove(d))

	// Agent work surface.
	mcp := api.Group("/mcp/tasks", mw.RequireAgent())
	mcp.GET("/available", auth.RequireCapability(models.CapQueryTasks), handleAvailable(d))
	mcp.GET("/:id", auth.RequireCapability(models.CapQueryTasks), handleAgentTaskGet(d))
	mcp.POST("/:id/claim", auth.RequireCapability(models.CapClaimTask), handleClaim(d))
	mcp.POST("/:id/release", auth.RequireCapability(models.CapReleaseTask), handleRelease(d))
	mcp.PATCH("/:id/status", auth.RequireCapability(models.CapMove), handleAgentStatus(d))
	mcp.POST("/:id/comment", auth.RequireCapability(models.CapComment), handleAgentComment(d))
	mcp.POST("/:id/subtask", auth.RequireCapability(models.CapCreateSubtask), handleAgentSubtask(d))

	// Conversational surface for humans. Actions execute as the built-in
	// chat agent; capability checks happen per dispatched action.
	api.POST("/agent/chat", mw.RequireHuman(), handleChat(d))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "KanbanX API",
			"version": "1.0",
		})
	}
}
