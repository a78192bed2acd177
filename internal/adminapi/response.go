package adminapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/medsbot/internal/ledger"
	"go.uber.org/zap"
)

// Response is the success envelope.
type Response struct {
	Data interface{} `json:"data"`
}

// ListResponse is the envelope for list endpoints.
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Data: data})
}

func list(c echo.Context, data interface{}, total int) error {
	return c.JSON(http.StatusOK, ListResponse{Data: data, Total: int64(total)})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message, Details: details})
}

// failLedger maps ledger error kinds to HTTP statuses.
func failLedger(c echo.Context, err error) error {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", verr.Error(), verr.Field)
	case errors.Is(err, ledger.ErrNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		zap.L().Error("adminapi: ledger operation failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Storage error", nil)
	}
}

func parseID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
