package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/models"
	"gorm.io/gorm"
)

// Gin context keys for the authenticated principal.
const (
	ctxUser  = "auth.user"
	ctxAgent = "auth.agent"
)

// Middleware carries the dependencies the route guards need.
type Middleware struct {
	DB     *gorm.DB
	Tokens *Tokens
}

// CurrentUser returns the authenticated user set by RequireHuman.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ctxUser); ok {
		return v.(*models.User)
	}
	return nil
}

// CurrentAgent returns the authenticated agent set by RequireAgent.
func CurrentAgent(c *gin.Context) *models.Agent {
	if v, ok := c.Get(ctxAgent); ok {
		return v.(*models.Agent)
	}
	return nil
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// RequireHuman verifies a human bearer token and loads the user row.
func (m *Middleware) RequireHuman() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "no token provided")
			return
		}
		claims, err := m.Tokens.VerifyHuman(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		var user models.User
		if err := m.DB.Where("id = ?", claims.Subject).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abort(c, http.StatusUnauthorized, "user not found")
				return
			}
			abort(c, http.StatusInternalServerError, "authentication failed")
			return
		}

		c.Set(ctxUser, &user)
		c.Next()
	}
}

// RequireAgent verifies an agent bearer token, loads the agent row,
// rejects inactive agents, and touches last_active.
func (m *Middleware) RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "no agent token provided")
			return
		}
		claims, err := m.Tokens.VerifyAgent(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid agent token")
			return
		}

		var agent models.Agent
		if err := m.DB.Where("id = ?", claims.AgentID).First(&agent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abort(c, http.StatusUnauthorized, "agent not found")
				return
			}
			abort(c, http.StatusInternalServerError, "agent authentication failed")
			return
		}
		if !agent.IsActive {
			abort(c, http.StatusUnauthorized, "agent is inactive")
			return
		}

		// Best-effort activity touch; a failure here never blocks the request.
		now := time.Now()
		if err := m.DB.Model(&models.Agent{}).Where("id = ?", agent.ID).
			Update("last_active", now).Error; err != nil {
			log.Printf("auth: touch last_active for %s: %v", agent.ID, err)
		}
		agent.LastActive = &now

		c.Set(ctxAgent, &agent)
		c.Next()
	}
}

// RequireRole allows only users whose role is in allowed. It must run
// after RequireHuman.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abort(c, http.StatusForbidden, "insufficient permissions")
			return
		}
		for _, role := range allowed {
			if user.Role == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "insufficient permissions")
	}
}

// RequireCapability allows only agents holding the named capability.
// It must run after RequireAgent.
func RequireCapability(capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := CurrentAgent(c)
		if agent == nil {
			abort(c, http.StatusForbidden, "agent authentication required")
			return
		}
		if !agent.HasCapability(capability) {
			abort(c, http.StatusForbidden, "agent lacks required capability: "+capability)
			return
		}
		c.Next()
	}
}
