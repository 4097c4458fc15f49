package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/studyhub/studyhub/internal/application/command"
	"github.com/studyhub/studyhub/internal/application/query"
	"github.com/studyhub/studyhub/internal/domain/leaderboard"
	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type recordSessionRequest struct {
	UserID     string     `json:"user_id"`
	DurationMs int64      `json:"duration_ms"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// RecordDTO is the public view of a study record.
type RecordDTO struct {
	UserID        string    `json:"user_id"`
	TotalMs       int64     `json:"total_ms"`
	DailyMs       int64     `json:"daily_ms"`
	CurrentStreak int       `json:"current_streak"`
	LastStudyDate time.Time `json:"last_study_date"`
	HistoryDays   int       `json:"history_days"`
}

func recordDTO(rec *study.StudyRecord) RecordDTO {
	return RecordDTO{
		UserID:        rec.UserID,
		TotalMs:       rec.TotalTime,
		DailyMs:       rec.DailyTime,
		CurrentStreak: rec.CurrentStreak,
		LastStudyDate: rec.LastStudyDate,
		HistoryDays:   len(rec.History),
	}
}

type recordSessionResponse struct {
	Record      RecordDTO `json:"record"`
	DayRolled   bool      `json:"day_rolled"`
	ArchivedDay string    `json:"archived_day,omitempty"`
}

// handleRecordSession handles POST /v1/sessions
func (s *Server) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	var req recordSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.RecordSession.Handle(r.Context(), command.RecordSessionCommand{
		UserID:     req.UserID,
		DurationMs: req.DurationMs,
		EndedAt:    timeOrZero(req.EndedAt),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordSessionResponse{
		Record:      recordDTO(res.Record),
		DayRolled:   res.Transition.DayRolled,
		ArchivedDay: res.Transition.ArchivedDay,
	})
}

type transferRequest struct {
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Hours      float64 `json:"hours"`
}

// handleTransfer handles POST /v1/transfers
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.TransferTime.Handle(r.Context(), command.TransferTimeCommand{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Hours:      req.Hours,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"amount_ms":      res.AmountMs,
		"sender_total":   res.SenderTotal,
		"receiver_total": res.ReceiverTotal,
	})
}

type sessionRequest struct {
	UserID string     `json:"user_id"`
	At     *time.Time `json:"at,omitempty"`
}

// handleStartSession handles POST /v1/sessions/start
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.deps.Sessions.Start(r.Context(), command.StartSessionCommand{
		UserID:    req.UserID,
		StartedAt: timeOrZero(req.At),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"user_id": req.UserID, "status": "started"})
}

type stopSessionResponse struct {
	UserID     string     `json:"user_id"`
	StartedAt  time.Time  `json:"started_at"`
	DurationMs int64      `json:"duration_ms"`
	Capped     bool       `json:"capped"`
	Record     *RecordDTO `json:"record,omitempty"`
}

// handleStopSession handles POST /v1/sessions/stop
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.Sessions.Stop(r.Context(), command.StopSessionCommand{
		UserID:  req.UserID,
		EndedAt: timeOrZero(req.At),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := stopSessionResponse{UserID: req.UserID, StartedAt: res.Session.StartedAt, Capped: res.Capped}
	if res.Recorded != nil {
		dto := recordDTO(res.Recorded.Record)
		out.Record = &dto
	}
	out.DurationMs = res.DurationMs
	writeJSON(w, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUserStats handles GET /v1/users/{id}/stats
func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.UserStats.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleUserSeries handles GET /v1/users/{id}/series?days=7
func (s *Server) handleUserSeries(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 7)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	series, err := s.deps.UserStats.Series(r.Context(), r.PathValue("id"), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// handleUserIntervals handles GET /v1/users/{id}/intervals
func (s *Server) handleUserIntervals(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.UserStats.Intervals(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleUserRank handles GET /v1/users/{id}/rank?mode=linear
func (s *Server) handleUserRank(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Leaderboard.Breakdown(r.Context(), r.PathValue("id"), leaderboard.Mode(r.URL.Query().Get("mode")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleLeaderboard handles GET /v1/leaderboard?mode=&limit=&fresh=
// An empty cohort is a 200 with no entries and no_data set.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))

	snap, err := s.deps.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		Mode:  leaderboard.Mode(r.URL.Query().Get("mode")),
		Limit: limit,
		Fresh: fresh,
	})
	if err != nil && !(shared.IsNoData(err) && snap != nil) {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*leaderboard.Snapshot
		NoData bool `json:"no_data"`
	}{snap, snap.NoData()})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps error kinds to status codes. Storage failures are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, shared.ErrSessionAlreadyActive):
		status, code = http.StatusConflict, "session_active"
	case shared.IsInvalidInput(err):
		status, code = http.StatusBadRequest, "invalid_input"
	case shared.IsInvalidTarget(err):
		status, code = http.StatusUnprocessableEntity, "invalid_target"
	case shared.IsInsufficientBalance(err):
		status, code = http.StatusConflict, "insufficient_balance"
	case shared.IsNotFound(err), shared.IsNoData(err):
		status, code = http.StatusNotFound, "not_found"
	case shared.IsStorage(err):
		status, code = http.StatusInternalServerError, "storage_error"
	}

	msg := err.Error()
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed", slog.String("path", r.URL.Path), logger.Err(err))
		msg = "the request could not be completed"
	}
	writeJSONError(w, status, code, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.WrapError("http", "Query", shared.ErrInvalidInput, fmt.Sprintf("%s must be an integer", key), err)
	}
	return v, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
