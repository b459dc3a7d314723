package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func successWithMetaResponse(message string, data interface{}, meta interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

// respondError maps a service error onto its HTTP status, carrying the
// error kind so clients can branch without parsing messages.
func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), APIResponse{
		Success: false,
		Message: err.Error(),
		Error:   string(apperrors.KindOf(err)),
	})
}
