package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/models"
	"gorm.io/gorm"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type profileUpdateRequest struct {
	DisplayName     *string `json:"display_name"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password"`
}

func handleLogin(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("username and password are required"))
			return
		}

		var user models.User
		err := d.db.Where("username = ?", req.Username).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondErr(c, apperr.Authentication("invalid credentials"))
			return
		}
		if err != nil {
			respondErr(c, apperr.Internal(err, "load user"))
			return
		}
		if !auth.VerifyPassword(req.Password, user.PasswordHash) {
			respondErr(c, apperr.Authentication("invalid credentials"))
			return
		}

		token, err := d.tokens.IssueHuman(&user)
		if err != nil {
			respondErr(c, apperr.Internal(err, "issue token"))
			return
		}
		respondOK(c, http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func handleRegister(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("username and a password of at least 8 characters are required"))
			return
		}

		role := req.Role
		if role == "" {
			role = models.RoleUser
		}
		if role != models.RoleUser && role != models.RoleAdmin {
			respondErr(c, apperr.Validation("invalid role %q; must be user or admin", req.Role))
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			respondErr(c, apperr.Internal(err, "hash password"))
			return
		}

		displayName := req.DisplayName
		if displayName == "" {
			displayName = req.Username
		}
		user := models.User{
			ID:           uuid.NewString(),
			Username:     req.Username,
			DisplayName:  displayName,
			PasswordHash: hash,
			Role:         role,
		}
		if err := d.db.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				respondErr(c, apperr.Conflict("username %q is taken", req.Username))
				return
			}
			respondErr(c, apperr.Internal(err, "create user"))
			return
		}
		respondOK(c, http.StatusCreated, user)
	}
}

func handleProfile(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, http.StatusOK, auth.CurrentUser(c))
	}
}

func handleProfileUpdate(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var req profileUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("invalid request body"))
			return
		}

		updates := map[string]interface{}{}
		if req.DisplayName != nil {
			updates["display_name"] = *req.DisplayName
		}
		if req.NewPassword != "" {
			if len(req.NewPassword) < 8 {
				respondErr(c, apperr.Validation("password must be at least 8 characters"))
				return
			}
			if req.CurrentPassword == "" {
				respondErr(c, apperr.Validation("current password required to change password"))
				return
			}
			if !auth.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
				respondErr(c, apperr.Authentication("current password is incorrect"))
				return
			}
			hash, err := auth.HashPassword(req.NewPassword)
			if err != nil {
				respondErr(c, apperr.Internal(err, "hash password"))
				return
			}
			updates["password_hash"] = hash
		}
		if len(updates) == 0 {
			respondErr(c, apperr.Validation("no fields to update"))
			return
		}

		if err := d.db.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(updates).Error; err != nil {
			respondErr(c, apperr.Internal(err, "update user"))
			return
		}
		respondMessage(c, http.StatusOK, nil, "profile updated")
	}
}
