package stage

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/vietddude/gramo/internal/core/domain"
)

// Improvements flattens a stage's analysis JSON into a list of readable items.
// Entries missing the fields that describe the change are skipped.
func Improvements(stage domain.StageName, analysis []byte) []domain.Improvement {
	if len(analysis) == 0 {
		return nil
	}

	var out []domain.Improvement
	switch stage {
	case domain.StageGrammar:
		gjson.GetBytes(analysis, "issues").ForEach(func(_, v gjson.Result) bool {
			text, correction := v.Get("text").String(), v.Get("correction").String()
			if correction == "" {
				return true
			}
			out = append(out, domain.Improvement{
				Type:        stage,
				Category:    v.Get("type").String(),
				Description: fmt.Sprintf("%s -> %s", text, correction),
				Detail:      v.Get("explanation").String(),
			})
			return true
		})
	case domain.StageStyle:
		gjson.GetBytes(analysis, "suggestions").ForEach(func(_, v gjson.Result) bool {
			improvement := v.Get("improvement").String()
			if improvement == "" {
				return true
			}
			out = append(out, domain.Improvement{
				Type:        stage,
				Category:    v.Get("aspect").String(),
				Description: fmt.Sprintf("%s - %s", v.Get("aspect").String(), improvement),
				Detail:      v.Get("rationale").String(),
			})
			return true
		})
	case domain.StageStructure:
		gjson.GetBytes(analysis, "flow_issues").ForEach(func(_, v gjson.Result) bool {
			suggestion := v.Get("suggestion").String()
			if suggestion == "" {
				return true
			}
			out = append(out, domain.Improvement{
				Type:        stage,
				Category:    v.Get("type").String(),
				Description: suggestion,
				Detail:      v.Get("rationale").String(),
			})
			return true
		})
	}
	return out
}
