package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/middleware"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/response"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stemsi/wellcheck-backend/internal/validator"
)

// AnalyticsHandler serves cohort reports and student histories.
type AnalyticsHandler struct {
	analyticsService *service.AnalyticsService
	log              zerolog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analyticsService *service.AnalyticsService, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		log:              log.With().Str("component", "analytics_handler").Logger(),
	}
}

// analyticsQuery is the query string of GET /admin/analytics.
type analyticsQuery struct {
	InstrumentID string `form:"instrument_id" binding:"omitempty,uuid"`
	SchoolID     int    `form:"school_id" binding:"omitempty,min=1"`
	Class        string `form:"class" binding:"omitempty,max=32"`
	Section      string `form:"section" binding:"omitempty,max=32"`
	Bucket       string `form:"bucket" binding:"omitempty,max=100"`
	From         string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To           string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

func (q analyticsQuery) filter() model.SubmissionFilter {
	f := model.SubmissionFilter{
		SchoolID:     q.SchoolID,
		ClassLabel:   q.Class,
		ClassSection: q.Section,
		Bucket:       q.Bucket,
	}
	if id, err := uuid.Parse(q.InstrumentID); err == nil {
		f.InstrumentID = &id
	}
	if t, err := time.Parse(time.DateOnly, q.From); err == nil {
		f.From = &t
	}
	if t, err := time.Parse(time.DateOnly, q.To); err == nil {
		f.To = &t
	}
	return f
}

// GetAnalytics godoc
// GET /api/v1/admin/analytics?instrument_id=&school_id=&class=&section=&bucket=&from=&to=
// School-scoped admins always see their own school.
func (h *AnalyticsHandler) GetAnalytics(c *gin.Context) {
	var q analyticsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	filter := q.filter()

	if school := middleware.SchoolScope(c); school != 0 {
		filter.SchoolID = school
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"to": "to must not be before from"})
		return
	}

	report, err := h.analyticsService.Compute(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Analytics failed")
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

// GetStudentSubmissions godoc
// GET /api/v1/admin/students/:id/submissions?page=&per_page=
func (h *AnalyticsHandler) GetStudentSubmissions(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("id"))
	if err != nil || studentID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	subs, pagination, err := h.analyticsService.StudentHistory(
		c.Request.Context(), studentID, middleware.SchoolScope(c), page, perPage)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": subs}, pagination)
}
