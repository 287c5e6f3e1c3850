// Package api is the thin JSON ingress for the two scheduling call
// contracts. Payloads are validated against JSON schemas before any
// domain code runs; everything past this boundary works with typed
// values.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-sched/internal/queue"
	"github.com/p-n-ai/pai-sched/internal/scheduler"
)

const readyCheckTimeout = 2 * time.Second

// AttemptRecorder is the scheduler surface the attempts endpoint needs.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, learnerID, itemID string, isCorrect bool, responseTimeMs int, behavior scheduler.Behavior) (*scheduler.Result, error)
}

// QueueBuilder is the queue surface the queue endpoint needs.
type QueueBuilder interface {
	Build(ctx context.Context, learnerID string, pool map[string][]string, targetCount int, now time.Time, opts queue.Options) ([]queue.Selection, error)
}

// PoolSource supplies the item pool for queue builds, grouped by topic.
type PoolSource interface {
	Pool(topicIDs ...string) map[string][]string
}

// CardLister is the read-only card access the readiness summary needs.
type CardLister interface {
	List(ctx context.Context, learnerID string) ([]*scheduler.StoredCard, error)
}

// BehaviorWriter receives the analytics pipeline's focus and confidence
// scores. The stats stores implement it.
type BehaviorWriter interface {
	SetBehaviorScores(ctx context.Context, learnerID string, focus, confidence int) error
}

// ReadyCheck is one dependency probe for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds Server dependencies. Scheduler, Builder, Pool, Cards and
// Stats are required; nil Now falls back to the wall clock.
type Config struct {
	Scheduler AttemptRecorder
	Builder   QueueBuilder
	Pool      PoolSource
	Cards     CardLister
	Stats     BehaviorWriter
	Ready     []ReadyCheck
	Now       func() time.Time
}

// Server serves the scheduling HTTP API.
type Server struct {
	scheduler AttemptRecorder
	builder   QueueBuilder
	pool      PoolSource
	cards     CardLister
	stats     BehaviorWriter
	ready     []ReadyCheck
	now       func() time.Time

	attemptSchema  *gojsonschema.Schema
	queueSchema    *gojsonschema.Schema
	behaviorSchema *gojsonschema.Schema
}

// NewServer creates a Server and compiles its request schemas.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Scheduler == nil || cfg.Builder == nil || cfg.Pool == nil || cfg.Cards == nil || cfg.Stats == nil {
		return nil, fmt.Errorf("scheduler, builder, pool, cards and stats are required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	attemptSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(attemptSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile attempt schema: %w", err)
	}
	queueSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(queueSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile queue schema: %w", err)
	}
	behaviorSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(behaviorSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile behavior schema: %w", err)
	}

	return &Server{
		scheduler:      cfg.Scheduler,
		builder:        cfg.Builder,
		pool:           cfg.Pool,
		cards:          cfg.Cards,
		stats:          cfg.Stats,
		ready:          cfg.Ready,
		now:            now,
		attemptSchema:  attemptSchema,
		queueSchema:    queueSchema,
		behaviorSchema: behaviorSchema,
	}, nil
}

// Routes creates the HTTP router.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/attempts", s.handleAttempt)
	mux.HandleFunc("POST /v1/queue", s.handleQueue)
	mux.HandleFunc("PUT /v1/behavior", s.handleBehavior)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.ready {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		err := check.Check(ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "check", check.Name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  check.Name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// validateBody runs the schema over the raw payload and returns a
// human-readable violation summary, or "" when the payload is valid.
func validateBody(schema *gojsonschema.Schema, body []byte) string {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return "request body is not valid JSON"
	}
	if result.Valid() {
		return ""
	}
	msg := "invalid request"
	for _, violation := range result.Errors() {
		msg += "; " + violation.String()
	}
	return msg
}
