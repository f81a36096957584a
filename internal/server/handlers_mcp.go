package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/lease"
	"github.com/kanbanx/kanbanx/internal/models"
	"github.com/kanbanx/kanbanx/internal/task"
)

type claimRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

type releaseRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

type commentRequest struct {
	Comment string `json:"comment" binding:"required"`
}

type subtaskRequest struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	ServiceClass string `json:"service_class"`
}

func handleAvailable(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := auth.CurrentAgent(c)
		tasks, err := lease.ListAvailable(d.db, agent.Role)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusOK, task.Views(tasks))
	}
}

func handleAgentTaskGet(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, history, err := task.Get(d.db, c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"task": view, "history": history})
	}
}

func handleClaim(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := auth.CurrentAgent(c)

		duration := lease.DefaultDuration
		var req claimRequest
		// Body is optional; a missing or empty body means the default.
		if err := c.ShouldBindJSON(&req); err == nil && req.DurationMinutes > 0 {
			duration = time.Duration(req.DurationMinutes) * time.Minute
		}

		l, err := lease.Claim(d.db, d.recorder, agent, c.Param("id"), duration)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondMessage(c, http.StatusOK, l, "task claimed")
	}
}

func handleRelease(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := auth.CurrentAgent(c)

		var req releaseRequest
		c.ShouldBindJSON(&req) // reason is optional

		if err := lease.Release(d.db, d.recorder, agent, c.Param("id"), req.Reason); err != nil {
			respondErr(c, err)
			return
		}
		respondMessage(c, http.StatusOK, nil, "task released")
	}
}

func handleAgentStatus(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := auth.CurrentAgent(c)

		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("status is required"))
			return
		}
		if err := lease.TransitionStatus(d.db, d.recorder, agent, c.Param("id"), req.Status, req.Note); err != nil {
			respondErr(c, err)
			return
		}
		respondMessage(c, http.StatusOK, nil, "status updated to "+req.Status)
	}
}

func handleAgentComment(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := auth.CurrentAgent(c)

		var req commentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("comment is required"))
			return
		}
		if err := lease.Comment(d.db, d.recorder, agent, c.Param("id"), req.Comment); err != nil {
			respondErr(c, err)
			return
		}
		respondMessage(c, http.StatusOK, nil, "comment added")
	}
}

func handleAgentSubtask(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := auth.CurrentAgent(c)

		var req subtaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("title is required"))
			return
		}
		if req.ServiceClass == "" {
			req.ServiceClass = models.ClassLinear
		}

		sub, err := lease.CreateSubtask(d.db, d.recorder, agent, c.Param("id"), req.Title, req.Description, req.ServiceClass)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusCreated, task.NewView(*sub))
	}
}
