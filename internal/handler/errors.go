package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/response"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stemsi/wellcheck-backend/internal/session"
)

// classify maps a domain error to an HTTP status and error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrNotAssigned):
		return http.StatusForbidden, response.ErrNotAssigned
	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrAlreadyCompleted
	case errors.Is(err, service.ErrInstrumentInactive):
		return http.StatusForbidden, response.ErrInstrumentInactive
	case errors.Is(err, service.ErrInstrumentInUse):
		return http.StatusConflict, response.ErrInstrumentInUse
	case errors.Is(err, service.ErrOutOfScope):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrSessionBusy):
		return http.StatusConflict, response.ErrSessionBusy
	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, catalog.ErrInvalidInstrument):
		return http.StatusBadRequest, response.ErrInvalidInstrument
	case errors.Is(err, session.ErrUnanswered):
		return http.StatusBadRequest, response.ErrUnanswered
	case errors.Is(err, session.ErrNotCurrentQuestion):
		return http.StatusBadRequest, response.ErrNotCurrentQuestion
	case errors.Is(err, session.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, response.ErrSessionNotActive
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failFromError writes the error envelope for err. Instrument validation
// errors carry the list of problems.
func failFromError(c *gin.Context, err error) {
	status, code := classify(err)

	var ve *catalog.ValidationError
	if errors.As(err, &ve) {
		response.FailWithDetails(c, status, code, ve.Problems)
		return
	}
	response.Fail(c, status, code)
}
