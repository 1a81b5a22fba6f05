package engine

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/drummonds/docpreview/engine/preview"
)

// renderErrorKind classifies any render failure, unknown errors count as render failures
func renderErrorKind(err error) preview.ErrorKind {
	if kind := preview.KindOf(err); kind != "" {
		return kind
	}
	return preview.KindRenderFailure
}

// statusForKind maps a failure kind to its HTTP status
func statusForKind(kind preview.ErrorKind) int {
	switch kind {
	case preview.KindMissingFile, preview.KindEmptyFile:
		return http.StatusBadRequest
	case preview.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case preview.KindInvalidPage:
		return http.StatusRequestedRangeNotSatisfiable
	case preview.KindDecodeFailure:
		return http.StatusUnprocessableEntity
	case preview.KindTimeout:
		return http.StatusGatewayTimeout
	case preview.KindCanceled:
		return http.StatusRequestTimeout
	case preview.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeRenderError writes {"error": kind, "message": ..., "totalPages": n}
func writeRenderError(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	kind := renderErrorKind(err)
	message := err.Error()
	body := map[string]interface{}{
		"error": string(kind),
	}
	var previewErr *preview.Error
	if errors.As(err, &previewErr) {
		message = previewErr.Message
		if previewErr.Kind == preview.KindInvalidPage {
			body["totalPages"] = previewErr.TotalPages
		}
	}
	body["message"] = message

	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		Logger.Error("Preview failed", "kind", kind, "error", err)
	} else {
		Logger.Debug("Preview rejected", "kind", kind, "error", err)
	}
	return c.JSON(status, body)
}
