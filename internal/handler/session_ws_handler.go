package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/wellcheck-backend/internal/model"
	"github.com/stemsi/wellcheck-backend/internal/response"
	"github.com/stemsi/wellcheck-backend/internal/service"
	"github.com/stemsi/wellcheck-backend/internal/session"
	"github.com/stemsi/wellcheck-backend/internal/validator"
	ws "github.com/stemsi/wellcheck-backend/internal/websocket"
)

// lockRefreshInterval is how often a live session extends its lock.
const lockRefreshInterval = 10 * time.Second

// EventRecorder stores attempt audit events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e model.AttemptEvent) error
}

// EventRecorderFunc adapts a plain function, such as a synchronous insert,
// to EventRecorder.
type EventRecorderFunc func(ctx context.Context, e model.AttemptEvent) error

// RecordEvent calls f.
func (f EventRecorderFunc) RecordEvent(ctx context.Context, e model.AttemptEvent) error {
	return f(ctx, e)
}

// ProgressEnqueuer hands a failed save to the background retry worker.
type ProgressEnqueuer interface {
	EnqueueProgress(ctx context.Context, in model.ProgressInput) error
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionHandler hosts server-driven assessment sessions over WebSocket.
type SessionHandler struct {
	attempts *service.AttemptService
	locks    *service.SessionLocks
	events   EventRecorder
	retries  ProgressEnqueuer
	tick     time.Duration
	throttle time.Duration
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// SessionHandlerConfig holds the optional collaborators and timings of a
// SessionHandler. Nil Events or Retries disable event recording and queued
// retries.
type SessionHandlerConfig struct {
	Events         EventRecorder
	Retries        ProgressEnqueuer
	TickInterval   time.Duration
	Throttle       time.Duration
	AllowedOrigins []string
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(attempts *service.AttemptService, locks *service.SessionLocks, cfg SessionHandlerConfig, log zerolog.Logger) *SessionHandler {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	return &SessionHandler{
		attempts: attempts,
		locks:    locks,
		events:   cfg.Events,
		retries:  cfg.Retries,
		tick:     tick,
		throttle: cfg.Throttle,
		log:      log.With().Str("component", "session_ws_handler").Logger(),
		upgrader: buildUpgrader(cfg.AllowedOrigins),
	}
}

// liveSession is the per-connection state of one hosted session.
type liveSession struct {
	studentID    int
	instrumentID uuid.UUID
	inst         *model.Instrument
	sess         *session.Session
	persister    *service.AttemptPersister
	conn         *ws.Conn
	log          zerolog.Logger
}

// SessionStream godoc
// WS /ws/v1/student/instruments/:instrument_id/session?token=
// Runs one attempt on the server: the client sends actions, the server
// ticks the inactivity clock and pushes events.
func (h *SessionHandler) SessionStream(c *gin.Context) {
	claims, instrumentID, ok := studentTarget(c)
	if !ok {
		return
	}

	// Eligibility is checked before the upgrade so errors use the HTTP envelope.
	att, err := h.attempts.Prepare(c.Request.Context(), claims.UserID, instrumentID)
	if err != nil {
		failFromError(c, err)
		return
	}

	lock, err := h.locks.Acquire(c.Request.Context(), instrumentID, claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			h.log.Warn().Err(err).Msg("Failed to release session lock")
		}
	}()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	persister := h.attempts.Persister(claims.UserID, instrumentID)
	live := &liveSession{
		studentID:    claims.UserID,
		instrumentID: instrumentID,
		inst:         att.Instrument,
		sess:         session.New(att.Instrument, persister, session.WithActivityThrottle(h.throttle)),
		persister:    persister,
		conn:         ws.NewConn(conn),
		log: h.log.With().
			Int("student_id", claims.UserID).
			Str("instrument_id", instrumentID.String()).
			Logger(),
	}
	defer live.conn.Close()

	if err := live.sess.Start(att.Resume); err != nil {
		h.writeErr(live, err)
		return
	}

	startEvent := model.AttemptEventStarted
	if att.Resume != nil {
		startEvent = model.AttemptEventResumed
	}
	h.record(live, startEvent)
	live.log.Info().Bool("resumed", att.Resume != nil).Msg("Session started")
	h.writeState(live)

	ctx, cancel := context.WithCancel(context.Background())
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		h.tickLoop(ctx, live, lock)
	}()

	h.readLoop(ctx, live)
	cancel()
	<-tickerDone

	// A dropped connection keeps the attempt resumable.
	if st := live.sess.State(); st == session.StateInProgress || st == session.StateAlerted {
		h.save(context.Background(), live)
	}
	live.log.Info().Str("state", string(live.sess.State())).Msg("Session closed")
}

func (h *SessionHandler) tickLoop(ctx context.Context, live *liveSession, lock *service.SessionLock) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	step := int(math.Max(1, math.Round(h.tick.Seconds())))
	lastRefresh := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Since(lastRefresh) >= lockRefreshInterval {
			if err := lock.Refresh(ctx); err != nil {
				live.log.Warn().Err(err).Msg("Failed to refresh session lock")
			}
			lastRefresh = time.Now()
		}

		sig, err := live.sess.Tick(ctx, step)
		switch sig {
		case session.SignalAlert:
			h.record(live, model.AttemptEventAlert)
			_ = live.conn.WriteTyped(ws.NoticeResponse{Event: ws.EventAlert, Message: "Are you still there?"})
		case session.SignalPaused:
			if err != nil {
				live.log.Error().Err(err).Msg("Forced save failed, queueing retry")
				h.enqueue(live)
			}
			h.record(live, model.AttemptEventPaused)
			_ = live.conn.WriteTyped(ws.NoticeResponse{Event: ws.EventPaused, Message: "Paused after inactivity. Your progress is saved."})
			_ = live.conn.CloseWith(websocket.CloseNormalClosure, "paused")
			return
		}
	}
}

func (h *SessionHandler) readLoop(ctx context.Context, live *liveSession) {
	for {
		data, err := live.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				live.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				live.log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = live.conn.WriteError(codeOf(service.ErrInvalidAnswer), "malformed message")
			continue
		}

		if done := h.dispatch(ctx, live, env.Action, data); done {
			_ = live.conn.CloseWith(websocket.CloseNormalClosure, "submitted")
			return
		}
	}
}

// dispatch handles one client message and reports whether the session is
// over.
func (h *SessionHandler) dispatch(ctx context.Context, live *liveSession, action ws.Action, data []byte) bool {
	if action != ws.ActionPing && action != ws.ActionSave {
		if sig := live.sess.OnUserActivity(); sig == session.SignalAlertCleared {
			h.record(live, model.AttemptEventAlertCleared)
			_ = live.conn.WriteTyped(ws.NoticeResponse{Event: ws.EventAlertCleared})
		}
	}

	switch action {
	case ws.ActionActivity:
		return false

	case ws.ActionPing:
		_ = live.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return false

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = live.conn.WriteError(codeOf(service.ErrInvalidAnswer), "malformed answer")
			return false
		}
		if err := live.sess.RecordAnswer(req.QuestionIndex, req.Option); err != nil {
			return h.writeErr(live, err)
		}
		h.writeState(live)
		return false

	case ws.ActionNext:
		var req ws.NextRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = live.conn.WriteError(codeOf(service.ErrInvalidAnswer), "malformed request")
			return false
		}
		if req.Details != nil {
			if fields := validator.Struct(req.Details); fields != nil {
				_ = live.conn.WriteError(codeOf(service.ErrInvalidAnswer), firstField(fields))
				return false
			}
			live.persister.SetDetails(model.AttemptProgress{
				MoodCheck:    req.Details.MoodCheck,
				ConsentGiven: req.Details.ConsentGiven,
				MobileNumber: req.Details.MobileNumber,
				Email:        req.Details.Email,
			})
		}
		sig, err := live.sess.Advance(ctx)
		if err != nil {
			return h.writeErr(live, err)
		}
		switch sig {
		case session.SignalSubmitted:
			h.writeSubmitted(live)
			return true
		case session.SignalSectionBoundary:
			h.writeSection(live)
		}
		h.writeState(live)
		return false

	case ws.ActionBack:
		if err := live.sess.GoBack(); err != nil {
			return h.writeErr(live, err)
		}
		h.writeState(live)
		return false

	case ws.ActionSave:
		if err := h.save(ctx, live); err != nil {
			return h.writeErr(live, err)
		}
		_ = live.conn.WriteTyped(ws.NoticeResponse{Event: ws.EventSaved})
		return false

	case ws.ActionSubmit:
		if err := live.sess.Submit(ctx); err != nil {
			return h.writeErr(live, err)
		}
		h.writeSubmitted(live)
		return true

	default:
		live.log.Warn().Str("action", string(action)).Msg("Unknown action")
		_ = live.conn.WriteError(codeOf(service.ErrInvalidAnswer), "unknown action: "+string(action))
		return false
	}
}

// save persists progress, queueing a retry when storage is unavailable.
func (h *SessionHandler) save(ctx context.Context, live *liveSession) error {
	err := live.sess.SaveProgress(ctx)
	if err == nil {
		return nil
	}
	if status, _ := classify(err); status == http.StatusInternalServerError {
		live.log.Error().Err(err).Msg("Save failed, queueing retry")
		h.enqueue(live)
	}
	return err
}

func (h *SessionHandler) enqueue(live *liveSession) {
	if h.retries == nil {
		return
	}
	in := live.persister.Input(live.sess.Snapshot())
	if err := h.retries.EnqueueProgress(context.Background(), in); err != nil {
		live.log.Error().Err(err).Msg("CRITICAL: Failed to queue progress retry. Progress may be lost.")
	}
}

func (h *SessionHandler) record(live *liveSession, typ model.AttemptEventType) {
	if h.events == nil {
		return
	}
	payload, _ := json.Marshal(map[string]int{"cursor": live.sess.Cursor()})
	err := h.events.RecordEvent(context.Background(), model.AttemptEvent{
		StudentID:    live.studentID,
		InstrumentID: live.instrumentID,
		Type:         typ,
		Payload:      payload,
		RecordedAt:   time.Now().UTC(),
	})
	if err != nil {
		live.log.Warn().Err(err).Str("event", string(typ)).Msg("Failed to record event")
	}
}

// writeErr reports err to the client and reports whether the session is
// over.
func (h *SessionHandler) writeErr(live *liveSession, err error) bool {
	_, code := classify(err)
	if code == response.ErrInternal {
		live.log.Error().Err(err).Msg("Session action failed")
	}
	_ = live.conn.WriteError(string(code), err.Error())

	if errors.Is(err, session.ErrAlreadyCompleted) {
		_ = live.conn.CloseWith(websocket.CloseNormalClosure, "already completed")
		return true
	}
	return false
}

func (h *SessionHandler) writeState(live *liveSession) {
	snap := live.sess.Snapshot()
	since, cumulative := live.sess.Inactivity()
	_ = live.conn.WriteTyped(ws.StateResponse{
		Event:                ws.EventState,
		State:                string(live.sess.State()),
		Cursor:               snap.LastQuestionIndex,
		TotalQuestions:       len(live.inst.Questions),
		Answers:              snap.Answers,
		SinceLastAction:      since,
		CumulativeInactivity: cumulative,
	})
}

func (h *SessionHandler) writeSection(live *liveSession) {
	cursor := live.sess.Cursor()
	size := live.inst.SectionSize()
	idx := cursor / size
	name := ""
	if idx < len(live.inst.Sections) {
		name = live.inst.Sections[idx].DisplayName
	}
	_ = live.conn.WriteTyped(ws.SectionResponse{
		Event:        ws.EventSection,
		Cursor:       cursor,
		SectionIndex: idx,
		SectionName:  name,
	})
}

func (h *SessionHandler) writeSubmitted(live *liveSession) {
	snap := live.sess.Snapshot()
	answered := 0
	for _, a := range snap.Answers {
		if a != nil {
			answered++
		}
	}

	h.record(live, model.AttemptEventSubmitted)
	live.log.Info().Int("answered", answered).Msg("Attempt submitted")
	_ = live.conn.WriteTyped(ws.SubmittedResponse{
		Event:          ws.EventSubmitted,
		AnsweredCount:  answered,
		ElapsedSeconds: snap.ElapsedSeconds,
		Message:        "Thank you. Your responses have been recorded.",
	})
}

func codeOf(err error) string {
	_, code := classify(err)
	return string(code)
}

func firstField(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return "invalid details"
}
