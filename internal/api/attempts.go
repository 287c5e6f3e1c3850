package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-sched/internal/attempt"
	"github.com/p-n-ai/pai-sched/internal/scheduler"
)

const attemptSchemaJSON = `{
	"type": "object",
	"required": ["learner_id", "item_id", "is_correct", "response_time_ms"],
	"properties": {
		"learner_id": {"type": "string", "minLength": 1, "maxLength": 128},
		"item_id": {"type": "string", "minLength": 1, "maxLength": 128},
		"is_correct": {"type": "boolean"},
		"response_time_ms": {"type": "integer", "minimum": 0},
		"behavior": {
			"type": "object",
			"properties": {
				"answer_changes": {"type": "integer", "minimum": 0},
				"was_skipped": {"type": "boolean"},
				"focus_score": {"type": "integer", "minimum": 0, "maximum": 100},
				"integrity_events": {"type": "integer", "minimum": 0}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

type attemptRequest struct {
	LearnerID      string `json:"learner_id"`
	ItemID         string `json:"item_id"`
	IsCorrect      bool   `json:"is_correct"`
	ResponseTimeMs int    `json:"response_time_ms"`
	Behavior       struct {
		AnswerChanges   int  `json:"answer_changes"`
		WasSkipped      bool `json:"was_skipped"`
		FocusScore      *int `json:"focus_score"`
		IntegrityEvents int  `json:"integrity_events"`
	} `json:"behavior"`
}

type attemptResponse struct {
	Rating       string    `json:"rating"`
	State        string    `json:"state"`
	Due          time.Time `json:"due"`
	IntervalDays int       `json:"interval_days"`
	Mastery      string    `json:"mastery"`
	IsWeakArea   bool      `json:"is_weak_area"`
}

func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}
	if msg := validateBody(s.attemptSchema, body); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var req attemptRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	behavior := scheduler.Behavior{
		AnswerChanges:   req.Behavior.AnswerChanges,
		WasSkipped:      req.Behavior.WasSkipped,
		FocusScore:      attempt.FocusUnknown,
		IntegrityEvents: req.Behavior.IntegrityEvents,
	}
	if req.Behavior.FocusScore != nil {
		behavior.FocusScore = *req.Behavior.FocusScore
	}

	res, err := s.scheduler.RecordAttempt(r.Context(), req.LearnerID, req.ItemID, req.IsCorrect, req.ResponseTimeMs, behavior)
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "recording attempt failed")
		return
	}

	writeJSON(w, http.StatusOK, attemptResponse{
		Rating:       res.Rating.String(),
		State:        res.State.String(),
		Due:          res.Due,
		IntervalDays: res.IntervalDays,
		Mastery:      string(res.Mastery),
		IsWeakArea:   res.IsWeakArea,
	})
}
