package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/middleware"
	"github.com/quickread/quickread-backend/internal/services"
)

// AnswerHandler serves everything generated from the active document.
type AnswerHandler struct {
	manager *services.SessionManager
}

func NewAnswerHandler(manager *services.SessionManager) *AnswerHandler {
	return &AnswerHandler{manager: manager}
}

func (ah *AnswerHandler) Summarize(c *gin.Context) {
	result, err := ah.manager.Summarize(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (ah *AnswerHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, domain.CodeValidation, err)
		return
	}
	result, err := ah.manager.Ask(c.Request.Context(), middleware.SessionID(c), req.Question)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

func (ah *AnswerHandler) SuggestedQuestions(c *gin.Context) {
	result, err := ah.manager.SuggestQuestions(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

func (ah *AnswerHandler) DownloadSummary(c *gin.Context) {
	filename, content, err := ah.manager.DownloadSummary(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(content))
}
