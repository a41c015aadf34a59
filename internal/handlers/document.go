package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/middleware"
	"github.com/quickread/quickread-backend/internal/services"
)

// DocumentHandler serves the ingest and lifecycle endpoints.
type DocumentHandler struct {
	manager        *services.SessionManager
	maxUploadBytes int64
}

func NewDocumentHandler(manager *services.SessionManager, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &DocumentHandler{manager: manager, maxUploadBytes: maxUploadBytes}
}

func (dh *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, domain.CodeValidation, fmt.Errorf("multipart field 'file' is required"))
		return
	}
	if header.Size > dh.maxUploadBytes {
		RespondError(c, http.StatusBadRequest, domain.CodeValidation,
			fmt.Errorf("file exceeds the %d byte upload limit", dh.maxUploadBytes))
		return
	}

	f, err := header.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, domain.CodeValidation, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, dh.maxUploadBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, domain.CodeValidation, err)
		return
	}
	if int64(len(data)) > dh.maxUploadBytes {
		RespondError(c, http.StatusBadRequest, domain.CodeValidation,
			fmt.Errorf("file exceeds the %d byte upload limit", dh.maxUploadBytes))
		return
	}

	result, err := dh.manager.Upload(c.Request.Context(), middleware.SessionID(c), header.Filename, data)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

type analyzeURLRequest struct {
	URL string `json:"url" binding:"required"`
}

func (dh *DocumentHandler) AnalyzeURL(c *gin.Context) {
	var req analyzeURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, domain.CodeValidation, err)
		return
	}
	result, err := dh.manager.AnalyzeURL(c.Request.Context(), req.URL, middleware.SessionID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

func (dh *DocumentHandler) Status(c *gin.Context) {
	status, err := dh.manager.Status(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, status)
}

func (dh *DocumentHandler) Remove(c *gin.Context) {
	result, err := dh.manager.Remove(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

func (dh *DocumentHandler) ClearSummary(c *gin.Context) {
	if err := dh.manager.ClearSummary(c.Request.Context(), middleware.SessionID(c)); err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"cleared": true})
}
