// Package stage runs a single analysis stage and interprets its payload.
package stage

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vietddude/gramo/internal/analysis/invoker"
	"github.com/vietddude/gramo/internal/analysis/metrics"
	"github.com/vietddude/gramo/internal/core/domain"
)

// Invoker is the resilient upstream call used by the runner.
type Invoker interface {
	Invoke(ctx context.Context, call invoker.Call) (invoker.Result, error)
}

// Runner binds a stage spec to the invoker.
type Runner struct {
	invoker Invoker
}

// NewRunner creates a runner.
func NewRunner(iv Invoker) *Runner {
	return &Runner{invoker: iv}
}

// Run executes spec against text. It never returns an error: failures are
// reported through the outcome. ImprovedText is empty when the stage did not
// propose a rewrite.
func (r *Runner) Run(ctx context.Context, spec Spec, text, style, goal string) domain.StageOutcome {
	out := domain.StageOutcome{Stage: spec.Name}

	res, err := r.invoker.Invoke(ctx, invoker.Call{
		Stage:        spec.Name,
		SystemPrompt: spec.SystemPrompt,
		UserPrompt:   spec.BuildPrompt(text, style, goal),
	})
	out.RawResponse = res.Raw
	if err != nil {
		out.Err = err
		out.Error = domain.KindOf(err)
		metrics.StageOutcomes.WithLabelValues(string(spec.Name), string(out.Error)).Inc()
		return out
	}

	analysisJSON, improved := interpret(res.JSON)
	out.Parsed = res.Parsed
	out.Analysis = analysisOf(res.Parsed)
	out.ImprovedText = improved
	out.Improvements = Improvements(spec.Name, analysisJSON)
	out.Succeeded = true
	metrics.StageOutcomes.WithLabelValues(string(spec.Name), "success").Inc()
	return out
}

// analysisOf returns the "analysis" object of a payload, or the payload
// itself when there is none.
func analysisOf(parsed map[string]any) map[string]any {
	if analysis, ok := parsed["analysis"].(map[string]any); ok {
		return analysis
	}
	return parsed
}

// interpret reads the analysis object and the proposed text from payload.
// improved_text is looked up inside the analysis first and at the top level
// second; blank or non-string values are ignored.
func interpret(payload []byte) (analysis []byte, improved string) {
	analysis = payload
	if a := gjson.GetBytes(payload, "analysis"); a.IsObject() {
		analysis = []byte(a.Raw)
	}
	for _, path := range []string{"analysis.improved_text", "improved_text"} {
		if v := gjson.GetBytes(payload, path); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return analysis, v.String()
		}
	}
	return analysis, ""
}
