package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/db"
	"github.com/kanbanx/kanbanx/internal/llm"
)

type chatRequest struct {
	Message string `json:"message" binding:"required"`
	// History is the prior conversation, oldest first. The client owns
	// it; the server keeps no session state.
	History []llm.Message `json:"history"`
}

// handleChat serves the human-facing conversational surface. Messages
// are executed by the built-in chat agent, so every dispatched action
// still passes that agent's capability checks.
func handleChat(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErr(c, apperr.Validation("message is required"))
			return
		}

		agent, err := db.SeedChatAgent(d.db)
		if err != nil {
			respondErr(c, apperr.Internal(err, "load chat agent"))
			return
		}

		cls, err := d.classifier.Classify(c.Request.Context(), req.Message)
		if err != nil {
			respondErr(c, err)
			return
		}

		reply := d.dispatcher.Dispatch(c.Request.Context(), agent, cls, req.Message, req.History)
		respondOK(c, http.StatusOK, reply)
	}
}
