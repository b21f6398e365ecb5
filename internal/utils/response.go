package utils

import (
	"net/http"
	"time"

	"tripchat/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every HTTP reply. Error.Code carries the
// same kind string the realtime channel sends in its error frames.
type APIResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

type Meta struct {
	Count int `json:"count,omitempty"`
}

func reply(c *gin.Context, status int, body APIResponse) {
	body.RequestID = c.GetString(ContextRequestID)
	body.Timestamp = time.Now().UTC()
	c.JSON(status, body)
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	reply(c, http.StatusOK, APIResponse{Status: StatusSuccess, Message: message, Data: data})
}

func SuccessResponseWithMeta(c *gin.Context, message string, data interface{}, meta *Meta) {
	reply(c, http.StatusOK, APIResponse{Status: StatusSuccess, Message: message, Data: data, Meta: meta})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	reply(c, http.StatusCreated, APIResponse{Status: StatusSuccess, Message: message, Data: data})
}

// AppErrorResponse maps err onto the envelope by its kind. Internal causes
// never reach the client.
func AppErrorResponse(c *gin.Context, err error) {
	appErrorResponse(c, err, nil)
}

func appErrorResponse(c *gin.Context, err error, details map[string]string) {
	reply(c, apperrors.HTTPStatus(err), APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:      string(apperrors.KindOf(err)),
			Message:   apperrors.PublicMessage(err),
			Retryable: apperrors.Retryable(err),
			Details:   details,
		},
	})
}

// ValidationErrorResponse reports field level failures as invalid_input.
func ValidationErrorResponse(c *gin.Context, fields map[string]string) {
	appErrorResponse(c, apperrors.New(apperrors.KindInvalidInput, ErrValidationFailed), fields)
}

func UnauthorizedResponse(c *gin.Context) {
	AppErrorResponse(c, apperrors.ErrAuthenticationFailed)
}

func BadRequestResponse(c *gin.Context, message string) {
	AppErrorResponse(c, apperrors.New(apperrors.KindInvalidInput, message))
}
