package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func definition(inst *model.Instrument) model.InstrumentRequest {
	active := inst.IsActive
	return model.InstrumentRequest{
		Title:                  inst.Title,
		Description:            inst.Description,
		Questions:              inst.Questions,
		Sections:               inst.Sections,
		Buckets:                inst.Buckets,
		InactivityAlertSeconds: inst.InactivityAlertSeconds,
		InactivityEndSeconds:   inst.InactivityEndSeconds,
		IsActive:               &active,
	}
}

func TestCreateAndGetInstrument(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.adminToken(0)

	def := definition(catalog.Default())
	def.Title = "Term 2 Check-in"

	code, env := h.do(http.MethodPost, "/api/v1/admin/instruments", tok, def)
	require.Equal(t, http.StatusCreated, code, env.Error)
	created := decode[model.Instrument](t, env.Data)
	require.NotEqual(t, uuid.Nil, created.ID)

	code, env = h.do(http.MethodGet, "/api/v1/admin/instruments/"+created.ID.String(), tok, nil)
	require.Equal(t, http.StatusOK, code)
	got := decode[model.Instrument](t, env.Data)
	assert.Equal(t, "Term 2 Check-in", got.Title)
	assert.Equal(t, 4, got.Questions[0].Options[3].Marks)
	assert.Equal(t, model.DefaultInactivityAlertSeconds, got.InactivityAlertSeconds)

	code, env = h.do(http.MethodGet, "/api/v1/admin/instruments", tok, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[struct {
		Instruments []model.Instrument `json:"instruments"`
	}](t, env.Data)
	assert.Len(t, list.Instruments, 2)
}

func TestCreateInstrumentRejectsInvalidDefinitions(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.adminToken(0)

	overlapping := definition(catalog.Default())
	overlapping.Buckets = []model.Bucket{
		{Label: "Low", MinScore: 8, MaxScore: 20},
		{Label: "High", MinScore: 18, MaxScore: 32},
	}

	unknownSection := definition(catalog.Default())
	unknownSection.Questions = append([]model.Question(nil), unknownSection.Questions...)
	unknownSection.Questions[0].Section = "Z"

	badThresholds := definition(catalog.Default())
	badThresholds.InactivityAlertSeconds = 60
	badThresholds.InactivityEndSeconds = 30

	tests := []struct {
		name       string
		body       any
		wantDetail string
	}{
		{"malformed JSON", `{"title":`, "invalid JSON"},
		{"missing title", map[string]any{"questions": []any{}, "sections": []any{}, "buckets": []any{}}, ""},
		{"overlapping buckets", overlapping, `bucket "High" overlaps "Low"`},
		{"unknown section", unknownSection, `question 0: unknown section "Z"`},
		{"end before alert", badThresholds, "inactivity_end_seconds must exceed inactivity_alert_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := h.do(http.MethodPost, "/api/v1/admin/instruments", tok, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "INVALID_INSTRUMENT", errCode(env))
			require.NotNil(t, env.Error)
			assert.NotEmpty(t, env.Error.Details)
			if tt.wantDetail != "" {
				assert.Contains(t, env.Error.Details[0], tt.wantDetail)
			}
		})
	}
}

func TestUpdateInstrumentIsBlockedOnceReferenced(t *testing.T) {
	h := newHarness(t, nil)
	tok := h.adminToken(0)
	path := "/api/v1/admin/instruments/" + h.inst.ID.String()

	def := definition(h.inst)
	def.Title = "Renamed"
	code, env := h.do(http.MethodPut, path, tok, def)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "Renamed", decode[model.Instrument](t, env.Data).Title)

	code, _ = h.do(http.MethodPost, h.attemptPath("progress"), h.studentToken(), map[string]any{
		"answers": answersFor(1, 0),
	})
	require.Equal(t, http.StatusOK, code)

	def.Title = "Renamed again"
	code, env = h.do(http.MethodPut, path, tok, def)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INSTRUMENT_IN_USE", errCode(env))

	stored, err := h.store.Instruments().GetByID(context.Background(), h.inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
}

func TestInstrumentRoutesNeedPermissions(t *testing.T) {
	h := newHarness(t, nil)
	unknown := "/api/v1/admin/instruments/" + uuid.NewString()

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
		wantCode   string
	}{
		{"student token", http.MethodGet, "/api/v1/admin/instruments", h.studentToken(), http.StatusForbidden, "ADMIN_ACCESS_ONLY"},
		{"read only admin writes", http.MethodPost, "/api/v1/admin/instruments", h.adminToken(0, service.PermissionInstrumentsRead), http.StatusForbidden, "PERMISSION_DENIED"},
		{"analytics admin reads", http.MethodGet, "/api/v1/admin/instruments", h.adminToken(0, service.PermissionAnalyticsRead), http.StatusForbidden, "PERMISSION_DENIED"},
		{"unknown instrument", http.MethodGet, unknown, h.adminToken(0), http.StatusNotFound, "NOT_FOUND"},
		{"refresh unknown", http.MethodPost, unknown + "/refresh-cache", h.adminToken(0), http.StatusNotFound, "NOT_FOUND"},
		{"bad id", http.MethodGet, "/api/v1/admin/instruments/42", h.adminToken(0), http.StatusBadRequest, "INVALID_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := h.do(tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantCode, errCode(env))
		})
	}

	code, _ := h.do(http.MethodPost, "/api/v1/admin/instruments/"+h.inst.ID.String()+"/refresh-cache", h.adminToken(0), nil)
	assert.Equal(t, http.StatusOK, code)
}
