package domain

import "fmt"

// StageName identifies one analysis pass.
type StageName string

const (
	StageGrammar   StageName = "grammar"
	StageStyle     StageName = "style"
	StageStructure StageName = "structure"
)

// CanonicalStages is the fixed execution order. Style and structure work on
// grammar's corrected text, so this order is not configurable.
var CanonicalStages = []StageName{StageGrammar, StageStyle, StageStructure}

// ParseStageName validates a focus area name.
func ParseStageName(s string) (StageName, error) {
	switch StageName(s) {
	case StageGrammar, StageStyle, StageStructure:
		return StageName(s), nil
	}
	return "", fmt.Errorf("%w: unknown focus area %q", ErrInvalidInput, s)
}

// OrderStages returns the requested stages in canonical order with duplicates removed.
func OrderStages(requested []StageName) []StageName {
	want := make(map[StageName]bool, len(requested))
	for _, s := range requested {
		want[s] = true
	}
	ordered := make([]StageName, 0, len(want))
	for _, s := range CanonicalStages {
		if want[s] {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// StageOutcome is the result of running one stage once.
type StageOutcome struct {
	Stage        StageName
	RawResponse  string
	Parsed       map[string]any
	Analysis     map[string]any
	ImprovedText string
	Improvements []Improvement
	Succeeded    bool
	Error        ErrorKind
	Err          error
}
