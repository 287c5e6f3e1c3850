package api

import (
	"encoding/json"
	"io"
	"net/http"
)

const behaviorSchemaJSON = `{
	"type": "object",
	"required": ["learner_id", "focus_score", "confidence_score"],
	"properties": {
		"learner_id": {"type": "string", "minLength": 1, "maxLength": 128},
		"focus_score": {"type": "integer", "minimum": 0, "maximum": 100},
		"confidence_score": {"type": "integer", "minimum": 0, "maximum": 100}
	},
	"additionalProperties": false
}`

type behaviorRequest struct {
	LearnerID       string `json:"learner_id"`
	FocusScore      int    `json:"focus_score"`
	ConfidenceScore int    `json:"confidence_score"`
}

// handleBehavior stores the analytics pipeline's per-learner focus and
// confidence scores. Queue builds pick the scores up on their next run;
// nothing is recomputed here.
func (s *Server) handleBehavior(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}
	if msg := validateBody(s.behaviorSchema, body); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var req behaviorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	if err := s.stats.SetBehaviorScores(r.Context(), req.LearnerID, req.FocusScore, req.ConfidenceScore); err != nil {
		writeError(w, http.StatusInternalServerError, "storing behavior scores failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
