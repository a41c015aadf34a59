package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quickread/quickread-backend/internal/domain"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code domain.Code, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    string(code),
		},
	})
}

// RespondDomainError maps an error's domain code onto an HTTP status.
// Client mistakes are 400, a vanished document is 404, trouble with the
// model or extractor is 502.
func RespondDomainError(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status := http.StatusBadGateway
	switch code {
	case domain.CodeValidation, domain.CodeUnsupportedSource, domain.CodeExtractionEmpty, domain.CodeNoActiveDocument:
		status = http.StatusBadRequest
	case domain.CodeDocumentNotFound:
		status = http.StatusNotFound
	}
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
