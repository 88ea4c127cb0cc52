package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/response"
	"github.com/stemsi/wellcheck-backend/internal/service"
)

// InstrumentHandler handles instrument management endpoints.
type InstrumentHandler struct {
	instrumentService *service.InstrumentService
	log               zerolog.Logger
}

// NewInstrumentHandler creates a new InstrumentHandler.
func NewInstrumentHandler(instrumentService *service.InstrumentService, log zerolog.Logger) *InstrumentHandler {
	return &InstrumentHandler{
		instrumentService: instrumentService,
		log:               log.With().Str("component", "instrument_handler").Logger(),
	}
}

// ListInstruments godoc
// GET /api/v1/admin/instruments
func (h *InstrumentHandler) ListInstruments(c *gin.Context) {
	instruments, err := h.instrumentService.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("List instruments failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if instruments == nil {
		instruments = []model.Instrument{}
	}

	response.Success(c, http.StatusOK, gin.H{"instruments": instruments})
}

// GetInstrument godoc
// GET /api/v1/admin/instruments/:id
// Returns the full definition, marks included.
func (h *InstrumentHandler) GetInstrument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	inst, err := h.instrumentService.GetByID(c.Request.Context(), id)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, inst)
}

// CreateInstrument godoc
// POST /api/v1/admin/instruments
// The body is checked against the instrument schema and the structural
// rules; every problem found is returned in error.details.
func (h *InstrumentHandler) CreateInstrument(c *gin.Context) {
	inst, ok := parseDefinition(c)
	if !ok {
		return
	}

	if err := h.instrumentService.Create(c.Request.Context(), inst); err != nil {
		h.log.Error().Err(err).Msg("Create instrument failed")
		failFromError(c, err)
		return
	}

	h.log.Info().Str("instrument_id", inst.ID.String()).Str("title", inst.Title).Msg("Instrument created")
	response.Success(c, http.StatusCreated, inst)
}

// UpdateInstrument godoc
// PUT /api/v1/admin/instruments/:id
// Instruments are immutable once a submission references them.
func (h *InstrumentHandler) UpdateInstrument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	inst, ok := parseDefinition(c)
	if !ok {
		return
	}
	inst.ID = id

	if err := h.instrumentService.Update(c.Request.Context(), inst); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, inst)
}

// RefreshCache godoc
// POST /api/v1/admin/instruments/:id/refresh-cache
func (h *InstrumentHandler) RefreshCache(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.instrumentService.RefreshCache(c.Request.Context(), id); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Cache refreshed"})
}

func parseDefinition(c *gin.Context) (*model.Instrument, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return nil, false
	}

	inst, err := catalog.Parse(raw)
	if err != nil {
		failFromError(c, err)
		return nil, false
	}
	return inst, true
}
