package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/middleware"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/response"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stemsi/wellcheck-backend/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (lobby, attempts).
type StudentPortalHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(attemptService *service.AttemptService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetLobby godoc
// GET /api/v1/student/instruments
// Returns the instruments assigned to the student with their completion status.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.attemptService.Lobby(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Int("student_id", claims.UserID).Msg("Lobby failed")
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"instruments": lobby})
}

// BeginAttempt godoc
// POST /api/v1/student/instruments/:instrument_id/attempt
// Returns the instrument without marks and, if one exists, the incomplete
// attempt to resume.
func (h *StudentPortalHandler) BeginAttempt(c *gin.Context) {
	claims, instrumentID, ok := studentTarget(c)
	if !ok {
		return
	}

	payload, err := h.attemptService.BeginOrResume(c.Request.Context(), claims.UserID, instrumentID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// SaveProgress godoc
// POST /api/v1/student/instruments/:instrument_id/progress
// Stores the raw answers as the incomplete attempt.
func (h *StudentPortalHandler) SaveProgress(c *gin.Context) {
	h.persist(c, h.attemptService.SaveProgress)
}

// SubmitAttempt godoc
// POST /api/v1/student/instruments/:instrument_id/submit
// Scores the answers and stores the completed attempt.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
	h.persist(c, h.attemptService.Submit)
}

func (h *StudentPortalHandler) persist(c *gin.Context, store func(context.Context, model.ProgressInput) (*model.SubmissionRef, error)) {
	claims, instrumentID, ok := studentTarget(c)
	if !ok {
		return
	}

	var req model.AttemptProgress
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ref, err := store(c.Request.Context(), model.ProgressInput{
		StudentID:       claims.UserID,
		InstrumentID:    instrumentID,
		AttemptProgress: req,
	})
	if err != nil {
		if status, _ := classify(err); status == http.StatusInternalServerError {
			h.log.Error().Err(err).
				Int("student_id", claims.UserID).
				Str("instrument_id", instrumentID.String()).
				Msg("Persist attempt failed")
		}
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ref)
}

// studentTarget reads the claims and the instrument_id path parameter,
// writing the error response itself when either is missing.
func studentTarget(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	instrumentID, err := uuid.Parse(c.Param("instrument_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, instrumentID, true
}
