package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/catalog"
	"github.com/stemsi/wellcheck-backend/internal/config"
	"github.com/stemsi/wellcheck-backend/internal/handler"
	"github.com/stemsi/wellcheck-backend/internal/localstore"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/response"
	"github.com/stemsi/wellcheck-backend/internal/router"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stemsi/wellcheck-backend/internal/validator"
	"github.com/stretchr/testify/require"
)

const testSchool = 7

// envelope mirrors response.Response with raw data.
type envelope struct {
	Data       json.RawMessage      `json:"data"`
	Pagination *response.Pagination `json:"pagination"`
	Error      *struct {
		Code    string            `json:"code"`
		Fields  map[string]string `json:"fields"`
		Details []string          `json:"details"`
	} `json:"error"`
}

type harness struct {
	t       *testing.T
	store   *localstore.Store
	auth    *service.AuthService
	engine  *gin.Engine
	inst    *model.Instrument
	student *model.Student
}

// newHarness wires the full router over an in-memory store with one
// instrument assigned to one student. mutate may adjust the instrument
// before it is stored.
func newHarness(t *testing.T, mutate func(*model.Instrument)) *harness {
	t.Helper()
	return newHarnessWithTick(t, mutate, time.Second)
}

// newHarnessWithTick is newHarness with a custom session tick. Every tick
// counts as at least one second of inactivity.
func newHarnessWithTick(t *testing.T, mutate func(*model.Instrument), tick time.Duration) *harness {
	t.Helper()
	validator.Setup()

	store, err := localstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		GinMode:             gin.TestMode,
		JWTSecret:           "test-secret",
		JWTExpiry:           time.Hour,
		SessionTickInterval: tick,
		AnalyticsLocation:   time.UTC,
		SaveRateLimit:       1000,
	}
	log := zerolog.Nop()

	ctx := context.Background()
	instruments := service.NewInstrumentService(store.Instruments(), store.Submissions(), nil, 0, log)
	attempts := service.NewAttemptService(instruments, store.Students(), store.Submissions(), log)
	analytics := service.NewAnalyticsService(instruments, store.Students(), store.Submissions(), time.UTC, log)
	auth := service.NewAuthService(cfg)

	inst := catalog.Default()
	if mutate != nil {
		mutate(inst)
	}
	require.NoError(t, instruments.Create(ctx, inst))

	student := &model.Student{AccessID: "S-001", Name: "Asha", ClassLabel: "Grade 7", ClassSection: "A", SchoolID: testSchool}
	require.NoError(t, store.Students().Create(ctx, student))
	require.NoError(t, store.Students().AssignInstrument(ctx, student.ID, inst.ID))

	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(attempts, log),
		Session: handler.NewSessionHandler(attempts, service.NewSessionLocks(nil, time.Minute), handler.SessionHandlerConfig{
			Events:       handler.EventRecorderFunc(store.Events().InsertEvent),
			TickInterval: cfg.SessionTickInterval,
		}, log),
		Instrument: handler.NewInstrumentHandler(instruments, log),
		Analytics:  handler.NewAnalyticsHandler(analytics, log),
	}

	return &harness{
		t:       t,
		store:   store,
		auth:    auth,
		engine:  router.SetupRouter(auth, handlers, cfg, nil, log),
		inst:    inst,
		student: student,
	}
}

func (h *harness) studentToken() string {
	tok, err := h.auth.GenerateStudentToken(h.student.ID, h.student.SchoolID)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) adminToken(schoolID int, perms ...string) string {
	if perms == nil {
		perms = []string{
			service.PermissionInstrumentsRead,
			service.PermissionInstrumentsWrite,
			service.PermissionAnalyticsRead,
			service.PermissionStudentsRead,
		}
	}
	tok, err := h.auth.GenerateAdminToken(1, schoolID, perms)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) (int, envelope) {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (h *harness) attemptPath(suffix string) string {
	return fmt.Sprintf("/api/v1/student/instruments/%s/%s", h.inst.ID, suffix)
}

// answersFor builds a full answer list choosing option for every question.
func answersFor(n, option int) []map[string]int {
	out := make([]map[string]int, n)
	for i := range out {
		out[i] = map[string]int{"selected_option": option, "time_taken": 2}
	}
	return out
}

func errCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}
