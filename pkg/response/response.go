package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	appErrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/validator"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code      string                     `json:"code"`
	Message   string                     `json:"message"`
	Kind      string                     `json:"kind,omitempty"`
	Retryable bool                       `json:"retryable,omitempty"`
	Fields    validator.ValidationErrors `json:"fields,omitempty"`
}

// Meta describes list metadata.
type Meta struct {
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
	Total   int `json:"total,omitempty"`
	Limit   int `json:"limit,omitempty"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta writes a JSON success response including metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	var (
		fields   validator.ValidationErrors
		existing *appErrors.AppError
	)
	if errors.As(err, &fields) && !errors.As(err, &existing) {
		err = appErrors.NewBadRequest("request validation failed").WithInternal(err)
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	kind := appErrors.KindOf(appErr)
	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Kind:      string(kind),
			Retryable: kind == appErrors.KindTransient || kind == appErrors.KindConflict,
			Fields:    fields,
		},
	})
}
