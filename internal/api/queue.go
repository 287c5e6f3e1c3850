package api

import (
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
	"github.com/p-n-ai/pai-sched/internal/queue"
	"github.com/p-n-ai/pai-sched/internal/readiness"
)

const queueSchemaJSON = `{
	"type": "object",
	"required": ["learner_id", "target_count"],
	"properties": {
		"learner_id": {"type": "string", "minLength": 1, "maxLength": 128},
		"target_count": {"type": "integer", "minimum": 0, "maximum": 500},
		"topic_ids": {"type": "array", "items": {"type": "string", "minLength": 1}},
		"exam_date": {"type": "string", "format": "date-time"},
		"exclude_recent_days": {"type": "integer", "minimum": -1}
	},
	"additionalProperties": false
}`

type queueRequest struct {
	LearnerID         string   `json:"learner_id"`
	TargetCount       int      `json:"target_count"`
	TopicIDs          []string `json:"topic_ids"`
	ExamDate          string   `json:"exam_date"`
	ExcludeRecentDays *int     `json:"exclude_recent_days"`
}

type queueResponse struct {
	Queue           []queue.Selection `json:"queue"`
	Readiness       int               `json:"readiness"`
	ReadinessAtExam *int              `json:"readiness_at_exam,omitempty"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}
	if msg := validateBody(s.queueSchema, body); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var req queueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	var examDate time.Time
	if req.ExamDate != "" {
		examDate, err = time.Parse(time.RFC3339, req.ExamDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "exam_date must be RFC 3339")
			return
		}
	}

	now := s.now()
	opts := queue.Options{
		// A fresh source per request; new-content jitter needs no
		// cross-request state.
		Rand: rand.New(rand.NewSource(now.UnixNano())),
	}
	if req.ExcludeRecentDays != nil {
		opts.ExcludeRecentDays = *req.ExcludeRecentDays
	}

	pool := s.pool.Pool(req.TopicIDs...)
	selections, err := s.builder.Build(r.Context(), req.LearnerID, pool, req.TargetCount, now, opts)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "building queue failed")
		return
	}

	stored, err := s.cards.List(r.Context(), req.LearnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading cards failed")
		return
	}
	cards := make([]fsrs.Card, 0, len(stored))
	for _, sc := range stored {
		cards = append(cards, sc.Card)
	}

	resp := queueResponse{
		Queue:     selections,
		Readiness: readiness.Estimate(cards, now),
	}
	if !examDate.IsZero() {
		atExam := readiness.EstimateAt(cards, now, examDate)
		resp.ReadinessAtExam = &atExam
	}
	if resp.Queue == nil {
		resp.Queue = []queue.Selection{}
	}

	writeJSON(w, http.StatusOK, resp)
}
