package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/models"
	"github.com/kanbanx/kanbanx/internal/task"
)

type taskCreateRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	ServiceClass string   `json:"service_class"`
	AIEligible   bool     `json:"ai_eligible"`
	Tags         []string `json:"tags"`
	Links        []string `json:"links"`
	ParentTaskID string   `json:"parent_task_id"`
}

type taskUpdateRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Status       *string  `json:"status"`
	ServiceClass *string  `json:"service_class"`
	AIEligible   *bool    `json:"ai_eligible"`
	Tags         []string `json:"tags"`
	Links        []string `json:"links"`
}

type taskMoveRequest struct {
	Status string `json:"status" binding:"required"`
}

func humanActor(c *gin.Context) task.Actor {
	user := auth.CurrentUser(c)
	return task.Actor{Type: models.ActorHuman, ID: user.ID}
}

func handleBoard(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		board, err := task.GetBoard(d.db)
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusOK, board)
	}
}

func handleTaskCreate(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req taskCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("title is required"))
			return
		}
		if req.ServiceClass == "" {
			req.ServiceClass = models.ClassLinear
		}

		created, err := task.Create(d.db, d.recorder, task.CreateOpts{
			Title:        req.Title,
			Description:  req.Description,
			ServiceClass: req.ServiceClass,
			AIEligible:   req.AIEligible,
			Tags:         req.Tags,
			Links:        req.Links,
			ParentTaskID: req.ParentTaskID,
			Actor:        humanActor(c),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusCreated, task.NewView(*created))
	}
}

func handleTaskGet(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, history, err := task.Get(d.db, c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"task": view, "history": history})
	}
}

func handleTaskUpdate(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req taskUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("invalid request body"))
			return
		}

		updated, err := task.Update(d.db, d.recorder, c.Param("id"), task.UpdateOpts{
			Title:        req.Title,
			Description:  req.Description,
			Status:       req.Status,
			ServiceClass: req.ServiceClass,
			AIEligible:   req.AIEligible,
			Tags:         req.Tags,
			Links:        req.Links,
			Actor:        humanActor(c),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		respondOK(c, http.StatusOK, task.NewView(*updated))
	}
}

func handleTaskMove(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req taskMoveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("status is required"))
			return
		}
		if err := task.Move(d.db, d.recorder, c.Param("id"), req.Status, humanActor(c)); err != nil {
			respondErr(c, err)
			return
		}
		respondMessage(c, http.StatusOK, nil, "task moved to "+req.Status)
	}
}
