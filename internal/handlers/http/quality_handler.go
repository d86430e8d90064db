package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/internal/core/services"
	apperrors "telemed/pkg/errors"
	"telemed/pkg/tracing"
	"telemed/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamOptions tunes the live quality websocket.
type StreamOptions struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
}

func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// QualityView is the UI binding for one session: the latest assessment and
// how to render it. Ready is false until the first poll.
type QualityView struct {
	SessionID    domain.SessionID          `json:"session_id"`
	Ready        bool                      `json:"ready"`
	Live         bool                      `json:"live"`
	Assessment   *domain.QualityAssessment `json:"assessment,omitempty"`
	Presentation *services.Presentation    `json:"presentation,omitempty"`
}

type AdaptationView struct {
	SessionID domain.SessionID       `json:"session_id"`
	Live      bool                   `json:"live"`
	State     domain.AdaptationState `json:"state"`
}

type QualityHandler struct {
	registry  *services.SessionRegistry
	reports   ports.QualityReportRepository
	metrics   *services.MetricsService
	presenter *services.PresentationService
	upgrader  websocket.Upgrader
	stream    StreamOptions
	logger    *zap.SugaredLogger
}

var _ ports.HTTPHandler = (*QualityHandler)(nil)

func NewQualityHandler(
	registry *services.SessionRegistry,
	reports ports.QualityReportRepository,
	metrics *services.MetricsService,
	presenter *services.PresentationService,
	stream StreamOptions,
	logger *zap.SugaredLogger,
) *QualityHandler {
	defaults := DefaultStreamOptions()
	if stream.PingInterval <= 0 {
		stream.PingInterval = defaults.PingInterval
	}
	if stream.WriteTimeout <= 0 {
		stream.WriteTimeout = defaults.WriteTimeout
	}
	if stream.ReadTimeout <= 0 {
		stream.ReadTimeout = defaults.ReadTimeout
	}

	return &QualityHandler{
		registry:  registry,
		reports:   reports,
		metrics:   metrics,
		presenter: presenter,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(stream.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		stream: stream,
		logger: logger,
	}
}

// originChecker allows every origin when the list is empty or holds "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			set = nil
			break
		}
		set[origin] = struct{}{}
	}
	if len(set) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// SetupRoutes registers the REST API on api and the websocket on ws. Both
// groups carry their own auth and rate limiting middleware.
func (h *QualityHandler) SetupRoutes(api, ws *gin.RouterGroup) {
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:id/quality", h.GetQuality)
	api.GET("/sessions/:id/adaptation", h.GetAdaptation)
	api.GET("/sessions/:id/stats", h.GetStats)
	api.POST("/sessions/:id/quality/level", h.ForceLevel)
	api.POST("/sessions/:id/quality/reset", h.ResetLevel)
	api.DELETE("/sessions/:id", h.EndSession)

	ws.GET("/sessions/:id/quality", h.StreamQuality)
}

func sessionParam(c *gin.Context) (domain.SessionID, bool) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return domain.SessionID(id), true
}

func (h *QualityHandler) ListSessions(c *gin.Context) {
	summaries := h.registry.Summaries()
	c.JSON(http.StatusOK, gin.H{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

func (h *QualityHandler) GetQuality(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	monitor, err := h.registry.Get(id)
	if err != nil {
		h.qualityFromReport(c, id, err)
		return
	}

	view := QualityView{SessionID: id, Live: monitor.IsMonitoring()}
	if assessment, ok := monitor.Quality(); ok {
		view.Ready = true
		view.Assessment = &assessment
		p := h.presenter.Present(assessment.Level)
		view.Presentation = &p
	}
	c.JSON(http.StatusOK, view)
}

func (h *QualityHandler) qualityFromReport(c *gin.Context, id domain.SessionID, lookupErr error) {
	report, ok := h.endedReport(c, id, lookupErr)
	if !ok {
		return
	}
	p := h.presenter.Present(report.Assessment.Level)
	c.JSON(http.StatusOK, QualityView{
		SessionID:    id,
		Ready:        true,
		Assessment:   &report.Assessment,
		Presentation: &p,
	})
}

// endedReport looks up the stored report of a session that is no longer
// live. It writes the error itself and returns false on failure.
func (h *QualityHandler) endedReport(c *gin.Context, id domain.SessionID, lookupErr error) (*domain.QualityReport, bool) {
	if h.reports == nil || !errors.Is(lookupErr, domain.ErrSessionNotFound) {
		_ = c.Error(toAppError(lookupErr))
		return nil, false
	}
	report, err := h.reports.GetBySession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			err = lookupErr
		}
		_ = c.Error(toAppError(err))
		return nil, false
	}
	return report, true
}

func (h *QualityHandler) GetAdaptation(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	monitor, err := h.registry.Get(id)
	if err != nil {
		report, ok := h.endedReport(c, id, err)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, AdaptationView{SessionID: id, State: report.Adaptation})
		return
	}

	state, ok := monitor.AdaptationState()
	if !ok {
		_ = c.Error(toAppError(domain.ErrAdaptationDisabled))
		return
	}
	c.JSON(http.StatusOK, AdaptationView{SessionID: id, Live: true, State: state})
}

func (h *QualityHandler) GetStats(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, h.metrics.GetSessionStats(id))
}

type forceLevelRequest struct {
	Level string `json:"level" binding:"required"`
}

func (h *QualityHandler) ForceLevel(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	var req forceLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError("level is required"))
		return
	}
	if err := validation.ValidateAdaptationLevel(req.Level); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	level, err := domain.ParseAdaptationLevel(req.Level)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	h.mutate(c, id, func(ctx context.Context, m *services.QualityMonitor) error {
		return m.ForceQualityLevel(ctx, level)
	})
}

func (h *QualityHandler) ResetLevel(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	h.mutate(c, id, func(ctx context.Context, m *services.QualityMonitor) error {
		return m.ResetToMaxQuality(ctx)
	})
}

// mutate runs a manual adaptation and answers with the resulting state.
func (h *QualityHandler) mutate(c *gin.Context, id domain.SessionID, fn func(context.Context, *services.QualityMonitor) error) {
	monitor, err := h.registry.Get(id)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	if err := fn(c.Request.Context(), monitor); err != nil {
		h.logger.Infow("manual adaptation rejected",
			"session_id", id,
			"subject", c.GetString("subject"),
			"error", err,
		)
		_ = c.Error(toAppError(err))
		return
	}

	state, _ := monitor.AdaptationState()
	h.logger.Infow("manual adaptation applied",
		"session_id", id,
		"subject", c.GetString("subject"),
		"level", state.Level,
	)
	c.JSON(http.StatusOK, AdaptationView{SessionID: id, Live: true, State: state})
}

func (h *QualityHandler) EndSession(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	if err := h.registry.Remove(c.Request.Context(), id); err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

type streamMessage struct {
	Type         string                   `json:"type"`
	SessionID    domain.SessionID         `json:"session_id"`
	Assessment   domain.QualityAssessment `json:"assessment"`
	Presentation services.Presentation    `json:"presentation"`
}

// StreamQuality pushes every new assessment of a live session over a
// websocket until the client goes away or the session ends.
func (h *QualityHandler) StreamQuality(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	monitor, err := h.registry.Get(id)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := monitor.Subscribe()
	defer unsubscribe()

	h.logger.Infow("quality stream opened", "session_id", id, "subject", c.GetString("subject"))

	// The reader only drains control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(h.stream.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.stream.ReadTimeout))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.stream.PingInterval)
	defer ping.Stop()

	if assessment, ok := monitor.Quality(); ok {
		if err := h.push(c.Request.Context(), conn, id, assessment); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			h.logger.Infow("quality stream closed", "session_id", id)
			return
		case assessment, ok := <-updates:
			if !ok {
				return
			}
			if err := h.push(c.Request.Context(), conn, id, assessment); err != nil {
				h.logger.Infow("quality stream write failed", "session_id", id, "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(h.stream.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *QualityHandler) push(ctx context.Context, conn *websocket.Conn, id domain.SessionID, assessment domain.QualityAssessment) error {
	_, span := tracing.TraceWebSocketMessage(ctx, "assessment", string(id))
	defer span.End()

	conn.SetWriteDeadline(time.Now().Add(h.stream.WriteTimeout))
	return conn.WriteJSON(streamMessage{
		Type:         "assessment",
		SessionID:    id,
		Assessment:   assessment,
		Presentation: h.presenter.Present(assessment.Level),
	})
}
