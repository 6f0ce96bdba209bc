package postkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/eringen/postkit/archive"
	"github.com/eringen/postkit/blob"
	"github.com/eringen/postkit/post"
)

var (
	// ErrNotFound is returned when a requested post, user or asset does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the viewer may not see or change a post.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized is returned when an operation needs a logged-in viewer.
	ErrUnauthorized = errors.New("login required")
)

// errorStatus maps an error to the HTTP status it is reported with.
func errorStatus(err error) int {
	var he *echo.HTTPError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, post.ErrInvalid),
		errors.Is(err, archive.ErrMissingPost),
		errors.Is(err, archive.ErrInvalidEntryName),
		errors.Is(err, archive.ErrDuplicateEntry),
		errors.Is(err, archive.ErrTooLarge),
		errors.Is(err, archive.ErrCorrupt),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, archive.ErrSlugConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type apiError struct {
	Message string            `json:"message"`
	Fields  []post.FieldError `json:"fields,omitempty"`
}

func newAPIError(code int, err error) apiError {
	if code >= http.StatusInternalServerError {
		return apiError{Message: http.StatusText(code)}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return apiError{Message: msg}
		}
		return apiError{Message: http.StatusText(he.Code)}
	}
	out := apiError{Message: err.Error()}
	var verr *post.ValidationError
	if errors.As(err, &verr) {
		out.Message = post.ErrInvalid.Error()
		out.Fields = verr.Fields
	}
	return out
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		a.Log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request().Method,
			"uri":    c.Request().RequestURI,
		}).Error("server error")
	}

	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, newAPIError(code, err))
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, code, a.Views.NotFound(a.siteView()))
	case code >= http.StatusInternalServerError:
		_ = RenderStatus(c, code, a.Views.ServerError(a.siteView()))
	default:
		a.Echo.DefaultHTTPErrorHandler(echo.NewHTTPError(code, newAPIError(code, err).Message), c)
	}
}
