package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nmi-agro/fdm/internal/auth"
	"github.com/nmi-agro/fdm/internal/calendar"
	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/internal/integrations"
	"github.com/nmi-agro/fdm/internal/loader"
	"github.com/nmi-agro/fdm/internal/web"
	"github.com/nmi-agro/fdm/middlewares"
	"github.com/nmi-agro/fdm/pkg/storage"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler renders handler errors. Domain errors map onto 4xx
// statuses with a message safe to show; anything unknown is logged and
// reported as a bare 500. A missing session redirects to sign-in.
func ErrorHandler(log *slog.Logger) web.ErrorHandler {
	return func(c web.Context, err error) error {
		if errors.Is(err, auth.ErrNoSession) {
			return c.Redirect(http.StatusFound, auth.SignInURL(c.Request().URL.RequestURI()))
		}

		he := Translate(err)
		reqID := middlewares.GetRequestID(c)
		attrs := []any{
			slog.Int("status", he.Code),
			slog.String("code", he.ErrorCode),
			slog.String("path", c.Request().URL.Path),
			slog.Any("error", err),
		}
		if pe, ok := middlewares.AsPanicError(err); ok && pe.Stack != nil {
			attrs = append(attrs, slog.String("stack", string(pe.Stack)))
		}
		if he.Code >= http.StatusInternalServerError {
			log.ErrorContext(c, "request failed", attrs...)
		} else {
			log.WarnContext(c, "request rejected", attrs...)
		}

		if re, ok := middlewares.AsRateLimitError(err); ok {
			c.SetHeader("Retry-After", strconv.Itoa(max(1, int(re.RetryAfter.Seconds()))))
		}
		if c.WantsJSON() {
			return c.JSON(he.Code, errorBody{Error: errorDetail{
				Code:      he.ErrorCode,
				Message:   he.Message,
				RequestID: reqID,
			}})
		}
		return c.String(he.Code, he.Message)
	}
}

// Translate maps err onto the HTTP error a client sees. The cause is kept
// for logging only.
func Translate(err error) *web.HTTPError {
	cause := web.WithCause(err)

	if _, ok := middlewares.AsTimeoutError(err); ok {
		return web.NewHTTPError(http.StatusGatewayTimeout, "request timed out", web.WithErrorCode("timeout"), cause)
	}
	if he := web.AsHTTPError(err); he != nil {
		if he.ErrorCode == "" {
			return web.NewHTTPError(he.Code, he.Message, web.WithErrorCode(codeFor(he.Code)), cause)
		}
		return he
	}

	var inputErr *core.InputError
	var validation *storage.ValidationError
	switch {
	case errors.As(err, &inputErr):
		return web.ErrBadRequest(inputErr.Message, web.WithErrorCode("invalid_input"), cause)
	case errors.Is(err, calendar.ErrMissingCalendar):
		return web.ErrBadRequest("calendar is required", web.WithErrorCode("missing_calendar"), cause)
	case errors.Is(err, calendar.ErrInvalidCalendar):
		return web.ErrBadRequest("calendar must be a year or \"all\"", web.WithErrorCode("invalid_calendar"), cause)
	case errors.Is(err, loader.ErrMissingFarmID):
		return web.ErrBadRequest("b_id_farm is required", web.WithErrorCode("missing_farm_id"), cause)
	case errors.Is(err, loader.ErrMissingFieldID):
		return web.ErrBadRequest("b_id is required", web.WithErrorCode("missing_field_id"), cause)
	case errors.Is(err, integrations.ErrInvalidCoordinates):
		return web.ErrBadRequest("lat and lon must be valid coordinates", web.WithErrorCode("invalid_coordinates"), cause)
	case errors.Is(err, core.ErrInvalidInput):
		return web.ErrBadRequest("invalid input", web.WithErrorCode("invalid_input"), cause)
	case errors.As(err, &validation):
		code := http.StatusBadRequest
		switch {
		case errors.Is(err, storage.ErrFileTooLarge):
			code = http.StatusRequestEntityTooLarge
		case errors.Is(err, storage.ErrInvalidMIME):
			code = http.StatusUnsupportedMediaType
		}
		return web.NewHTTPError(code, validation.Message, web.WithErrorCode("invalid_document"), cause)
	case errors.Is(err, core.ErrPermissionDenied):
		return web.ErrForbidden("you do not have access to this resource", web.WithErrorCode("forbidden"), cause)
	case errors.Is(err, core.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return web.ErrNotFound("not found", web.WithErrorCode("not_found"), cause)
	case errors.Is(err, core.ErrConflict):
		return web.ErrConflict("conflicts with existing data", web.WithErrorCode("conflict"), cause)
	case errors.Is(err, integrations.ErrUpstream):
		return web.ErrBadGateway("upstream service unavailable", web.WithErrorCode("upstream_unavailable"), cause)
	}

	if _, ok := middlewares.AsRateLimitError(err); ok {
		return web.ErrTooManyRequests("too many requests", web.WithErrorCode("rate_limited"), cause)
	}
	return web.ErrInternal("Internal Server Error", web.WithErrorCode("internal"), cause)
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway:
		return "upstream_unavailable"
	case http.StatusGatewayTimeout:
		return "timeout"
	}
	if status >= http.StatusInternalServerError {
		return "internal"
	}
	return "error"
}
