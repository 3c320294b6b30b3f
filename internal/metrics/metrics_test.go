package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raaihank/llm-guardrails/internal/bias"
	"github.com/raaihank/llm-guardrails/internal/guardrails"
	"github.com/raaihank/llm-guardrails/internal/privacy"
	"github.com/raaihank/llm-guardrails/internal/security"
	"github.com/raaihank/llm-guardrails/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePreProcess(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.ObservePreProcess(guardrails.PreProcessResult{
		PIIFindings: []privacy.Finding{{EntityType: "email", Label: "EMAIL", Count: 2, Distinct: 1}},
		Injection: security.InjectionResult{
			Score:        0.95,
			IsInjection:  true,
			MatchedRules: []string{"ignore_previous"},
		},
		Blocked: true,
	}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRequests.WithLabelValues("input", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InjectionMatches.WithLabelValues("ignore_previous")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PIIRedactions.WithLabelValues("email")))
}

func TestObservePostProcess(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.ObservePostProcess(guardrails.PostProcessResult{
		Validation: validation.ValidationResult{
			IsValid:    false,
			Violations: []validation.Violation{{Kind: validation.KindMaxLength}, {Kind: validation.KindHallucination}},
		},
		Bias:                   bias.Report{MatchedRules: []string{"gender_stereotype"}},
		UnresolvedPlaceholders: []string{"<<PHONE_1>>"},
	}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRequests.WithLabelValues("output", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues(validation.KindMaxLength)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BiasMatches.WithLabelValues("gender_stereotype")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnresolvedRestores))
}

func TestHandler(t *testing.T) {
	m := New("guardrails", nil)
	m.ObserveHTTP("GET", "/health", 200)
	m.ObserveReload(nil)
	m.ObserveReload(errors.New("bad config"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `guardrails_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, string(body), `guardrails_pipeline_reloads_total{result="failure"} 1`)
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New("dup", prometheus.NewRegistry())
		New("dup", prometheus.NewRegistry())
	})
}
