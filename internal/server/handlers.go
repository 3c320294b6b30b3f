package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raaihank/llm-guardrails/internal/corpus"
	"github.com/raaihank/llm-guardrails/internal/guardrails"
	"github.com/raaihank/llm-guardrails/internal/websocket"
	"go.uber.org/zap"
)

const simulatedResponsePrefix = "[Simulated LLM response to]: "

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	p := s.Pipeline()
	c := p.Corpus()

	rules := make(map[string]int, len(corpus.Categories))
	for _, cat := range corpus.Categories {
		rules[string(cat)] = c.Count(cat)
	}

	writeJSON(w, http.StatusOK, InfoResponse{
		Name:          "llm-guardrails",
		Version:       Version,
		CorpusVersion: c.Version(),
		Rules:         rules,
		Config:        p.Config(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		StatsEnabled:  s.stats != nil,
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	p := s.Pipeline()
	writeJSON(w, http.StatusOK, RulesResponse{
		CorpusVersion: p.Corpus().Version(),
		Injection:     p.InjectionRules(),
		PII:           ruleViews(p.Corpus().RulesFor(corpus.CategoryPII)),
		Bias:          ruleViews(p.Corpus().RulesFor(corpus.CategoryBias)),
	})
}

func ruleViews(rules []corpus.Rule) []RuleView {
	out := make([]RuleView, len(rules))
	for i, rule := range rules {
		out[i] = RuleView{
			ID:          rule.ID,
			Weight:      rule.Weight,
			Label:       rule.Label,
			Description: rule.Description,
		}
	}
	return out
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.metrics.WebSocketClients.Set(float64(s.wsHub.ClientCount()))

	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "detection counters are disabled")
		return
	}

	snapshot, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to read detection counters", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to read detection counters")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleGuardInput(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if !s.decode(w, r, &req) {
		return
	}

	pre := s.runInput(r, s.Pipeline(), req.Text)
	writeJSON(w, http.StatusOK, pre)
}

func (s *Server) handleGuardOutput(w http.ResponseWriter, r *http.Request) {
	var req OutputRequest
	if !s.decode(w, r, &req) {
		return
	}

	post := s.runOutput(r, s.Pipeline(), req.Text, req)
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleGuardFull(w http.ResponseWriter, r *http.Request) {
	var req FullRequest
	if !s.decode(w, r, &req) {
		return
	}

	// Both stages use the same pipeline even if a reload lands in between
	p := s.Pipeline()
	pre := s.runInput(r, p, req.Text)
	resp := FullResponse{Input: pre, Blocked: pre.Blocked}
	if pre.Blocked {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	llmResponse := simulatedResponsePrefix + pre.SanitisedText
	if req.SimulatedLLMResponse != nil {
		llmResponse = *req.SimulatedLLMResponse
	}
	resp.LLMResponse = llmResponse

	post := s.runOutput(r, p, llmResponse, OutputRequest{PIIMapping: pre.PIIMapping})
	resp.Output = &post
	resp.FinalText = post.FinalText

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runInput(r *http.Request, p *guardrails.Pipeline, text string) guardrails.PreProcessResult {
	start := time.Now()
	pre := p.PreProcess(text)
	elapsed := time.Since(start)

	requestID := getRequestID(r.Context())
	s.metrics.ObservePreProcess(pre, elapsed)
	s.record(r.Context(), requestID, func(ctx context.Context) error { return s.stats.RecordInput(ctx, pre) })

	entities := make(map[string]int, len(pre.PIIFindings))
	for _, f := range pre.PIIFindings {
		entities[f.EntityType] = f.Count
	}
	s.wsHub.BroadcastGuard(websocket.EventTypeGuardInput, websocket.GuardEvent{
		RequestID:      requestID,
		Stage:          "input",
		Blocked:        pre.Blocked,
		Valid:          true,
		InjectionScore: pre.Injection.Score,
		MatchedRules:   pre.Injection.MatchedRules,
		PIIEntities:    entities,
		ProcessingMS:   float64(elapsed.Microseconds()) / 1000,
		ClientIP:       s.clientIP.ClientIP(r),
	})

	if pre.Blocked {
		s.logger.WithRequestID(requestID).Warn("Input blocked",
			zap.Float64("injection_score", pre.Injection.Score),
			zap.Strings("matched_rules", pre.Injection.MatchedRules),
		)
	}
	return pre
}

func (s *Server) runOutput(r *http.Request, p *guardrails.Pipeline, text string, req OutputRequest) guardrails.PostProcessResult {
	start := time.Now()
	var post guardrails.PostProcessResult
	if len(req.JSONSchema) > 0 && string(req.JSONSchema) != "null" {
		post = p.PostProcessWithSchema(text, req.PIIMapping, req.JSONSchema)
	} else {
		post = p.PostProcess(text, req.PIIMapping)
	}
	elapsed := time.Since(start)

	requestID := getRequestID(r.Context())
	s.metrics.ObservePostProcess(post, elapsed)
	s.record(r.Context(), requestID, func(ctx context.Context) error { return s.stats.RecordOutput(ctx, post) })

	kinds := make([]string, len(post.Validation.Violations))
	for i, v := range post.Validation.Violations {
		kinds[i] = v.Kind
	}
	s.wsHub.BroadcastGuard(websocket.EventTypeGuardOutput, websocket.GuardEvent{
		RequestID:    requestID,
		Stage:        "output",
		Valid:        post.Validation.IsValid,
		BiasScore:    post.Bias.Score,
		MatchedRules: post.Bias.MatchedRules,
		Violations:   kinds,
		Unresolved:   len(post.UnresolvedPlaceholders),
		ProcessingMS: float64(elapsed.Microseconds()) / 1000,
		ClientIP:     s.clientIP.ClientIP(r),
	})
	return post
}

// record updates the detection counters; failures are logged, never returned
func (s *Server) record(ctx context.Context, requestID string, fn func(context.Context) error) {
	if s.stats == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.logger.WithRequestID(requestID).Warn("Failed to record detection counters", zap.Error(err))
	}
}

// decode reads a JSON body, writing the error response itself on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "request body is empty")
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Placeholders stay readable as <<EMAIL_1>> rather than \u003c\u003c
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: w.Header().Get("X-Request-ID")})
}
