package middleware

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/services"
)

// ValidationError carries per-field request validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{services.ErrPreconditionFailed, fiber.StatusConflict, "precondition_failed"},
	{services.ErrSettlementConflict, fiber.StatusConflict, "settlement_conflict"},
	{services.ErrInvalidTransition, fiber.StatusUnprocessableEntity, "invalid_transition"},
	{services.ErrIncompleteCompletionData, fiber.StatusUnprocessableEntity, "incomplete_completion_data"},
	{services.ErrAddressUnresolved, fiber.StatusUnprocessableEntity, "address_unresolved"},
	{services.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{services.ErrForbiddenActor, fiber.StatusForbidden, "forbidden_actor"},
	{services.ErrDataStoreUnavailable, fiber.StatusServiceUnavailable, "data_store_unavailable"},
	{services.ErrPhotoUploadFailed, fiber.StatusBadGateway, "photo_upload_failed"},
	{services.ErrInvalidPeriod, fiber.StatusBadRequest, "invalid_period"},
}

// ErrorHandler renders every error as {"success": false, "error": {...}}.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := describe(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "error": body})
	}
}

func describe(err error) (int, fiber.Map) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return fiber.StatusBadRequest, fiber.Map{
			"code":    "validation_failed",
			"message": "validation failed",
			"fields":  validation.Fields,
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, fiber.Map{"code": m.code, "message": err.Error()}
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fiber.Map{"code": strings.ReplaceAll(strings.ToLower(httpStatusText(fe.Code)), " ", "_"), "message": fe.Message}
	}

	return fiber.StatusInternalServerError, fiber.Map{"code": "internal_error", "message": "internal server error"}
}

func httpStatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "error"
}
