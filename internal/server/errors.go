package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/newslens/internal/aggregator"
	"github.com/mohammad-safakhou/newslens/models"
)

var errAnalysisDisabled = echo.NewHTTPError(http.StatusServiceUnavailable, "analysis requires llm.api_key")

// HTTPError is the JSON error body.
type HTTPError struct {
	Error string `json:"error"`
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	case models.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrArticleNotFound):
		return http.StatusNotFound, err.Error()
	case models.IsStorage(err), errors.Is(err, aggregator.ErrUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func errorHandler(log *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, msg := statusFor(err)
		req := c.Request()
		entry := log.WithFields(logrus.Fields{"status": code, "method": req.Method, "path": req.URL.Path, "remote": c.RealIP()})
		if code >= http.StatusInternalServerError {
			entry.WithError(err).Error("request error")
		} else {
			entry.WithError(err).Debug("request rejected")
		}
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, HTTPError{Error: msg})
	}
}
