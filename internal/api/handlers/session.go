package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"capture-worker-go/internal/logging"
	"capture-worker-go/internal/services/capture"
	"capture-worker-go/internal/services/dispatcher"
	"capture-worker-go/internal/services/scheduler"
	"capture-worker-go/internal/services/session"
	"capture-worker-go/internal/services/source"
)

// SessionProvider exposes the live state of the recording session
type SessionProvider interface {
	SessionStats() (session.Stats, bool)
	CaptureStatus() capture.Status
	DispatcherStats() dispatcher.Stats
	JobStats() []scheduler.JobStats
	SourceStats() source.Stats
}

type SessionHandler struct {
	provider SessionProvider
}

func NewSessionHandler(provider SessionProvider) *SessionHandler {
	return &SessionHandler{provider: provider}
}

type SessionResponse struct {
	Session    session.Stats        `json:"session"`
	Capture    capture.Status       `json:"capture"`
	Dispatcher dispatcher.Stats     `json:"dispatcher"`
	Jobs       []scheduler.JobStats `json:"jobs"`
	Source     source.Stats         `json:"source"`
	Timestamp  time.Time            `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// @Summary Current session
// @Description Live counters of the recording session, capture loop and persistence jobs
// @Tags session
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 404 {object} ErrorResponse
// @Router /session [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	stats, ok := h.provider.SessionStats()
	if !ok {
		logging.Debug(c).Msg("Session requested before it was opened")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no session open"})
		return
	}

	jobs := h.provider.JobStats()
	if jobs == nil {
		jobs = []scheduler.JobStats{}
	}

	c.JSON(http.StatusOK, SessionResponse{
		Session:    stats,
		Capture:    h.provider.CaptureStatus(),
		Dispatcher: h.provider.DispatcherStats(),
		Jobs:       jobs,
		Source:     h.provider.SourceStats(),
		Timestamp:  time.Now(),
	})
}
