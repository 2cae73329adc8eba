package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/pipesim/internal/orchestrator"
	"github.com/shaiso/pipesim/internal/repo"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// InternalError отправляет ошибку 500, не раскрывая причину клиенту.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// errorMapping сопоставляет sentinel-ошибки с HTTP ответом.
// Пустой message означает текст самой ошибки.
var errorMapping = []struct {
	target  error
	status  int
	code    ErrorCode
	message string
}{
	{repo.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "pipeline not found"},
	{repo.ErrInvalidState, http.StatusUnprocessableEntity, ErrCodeInvalidState, ""},
	{orchestrator.ErrOrchestratorStopped, http.StatusServiceUnavailable, ErrCodeUnavailable, "server is shutting down"},
}

// HandleRepoError пишет ответ для ошибки хранилища или контроллера.
// Возвращает false, если err == nil и обработчик должен продолжить.
func HandleRepoError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.status, m.code, msg)
			return true
		}
	}

	InternalError(w, logger, err)
	return true
}
