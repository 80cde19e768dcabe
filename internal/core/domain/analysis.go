package domain

import (
	"maps"
	"slices"
	"time"
)

// PipelineRequest is one accepted analysis request.
type PipelineRequest struct {
	Text       string
	Style      string
	Goal       string
	FocusAreas []StageName
}

// Improvement is one flattened issue or suggestion from a stage.
type Improvement struct {
	Type        StageName `json:"type"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description"`
	Detail      string    `json:"detail,omitempty"`
}

// TextStats holds deterministic statistics about the input text.
type TextStats struct {
	WordCount         int     `json:"word_count"`
	SentenceCount     int     `json:"sentence_count"`
	AvgWordLength     float64 `json:"avg_word_length"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	ReadabilityScore  float64 `json:"readability_score"`
}

// ToneAnalysis holds heuristic tone scores.
type ToneAnalysis struct {
	PrimaryTone string             `json:"primary_tone"`
	ToneScores  map[string]float64 `json:"tone_scores"`
}

// PipelineResult is the merged output of all requested stages.
type PipelineResult struct {
	ID               string                       `json:"id"`
	OriginalText     string                       `json:"original_text"`
	ImprovedText     string                       `json:"improved_text"`
	Style            string                       `json:"style"`
	Goal             string                       `json:"goal,omitempty"`
	FocusAreas       []StageName                  `json:"focus_areas"`
	PerStageAnalysis map[StageName]map[string]any `json:"analysis"`
	StageErrors      map[StageName]ErrorKind      `json:"stage_errors,omitempty"`
	Improvements     []Improvement                `json:"improvements"`
	TextStats        TextStats                    `json:"text_stats"`
	ToneAnalysis     ToneAnalysis                 `json:"tone_analysis"`
	Language         string                       `json:"language,omitempty"`
	LanguageScore    float64                      `json:"language_confidence,omitempty"`
	Truncated        bool                         `json:"truncated"`
	Warnings         []string                     `json:"warnings,omitempty"`
	Error            *string                      `json:"error"`
	Duration         time.Duration                `json:"duration_ns"`
}

// NewPipelineResult returns a result echoing the input with every stage analysis null.
func NewPipelineResult(text string) *PipelineResult {
	analysis := make(map[StageName]map[string]any, len(CanonicalStages))
	for _, s := range CanonicalStages {
		analysis[s] = nil
	}
	return &PipelineResult{
		OriginalText:     text,
		ImprovedText:     text,
		PerStageAnalysis: analysis,
		Improvements:     []Improvement{},
	}
}

// Clone copies r so the copy's maps, slices and per-stage analyses can be
// changed without touching r.
func (r *PipelineResult) Clone() *PipelineResult {
	c := *r
	c.FocusAreas = slices.Clone(r.FocusAreas)
	c.Improvements = slices.Clone(r.Improvements)
	c.Warnings = slices.Clone(r.Warnings)
	c.StageErrors = maps.Clone(r.StageErrors)
	if r.PerStageAnalysis != nil {
		c.PerStageAnalysis = make(map[StageName]map[string]any, len(r.PerStageAnalysis))
		for s, a := range r.PerStageAnalysis {
			c.PerStageAnalysis[s] = maps.Clone(a)
		}
	}
	if r.Error != nil {
		msg := *r.Error
		c.Error = &msg
	}
	return &c
}

// AnalysisRecord is a stored pipeline run.
type AnalysisRecord struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	Style        string          `json:"style"`
	Goal         string          `json:"goal,omitempty"`
	FocusAreas   []StageName     `json:"focus_areas"`
	OriginalText string          `json:"original_text"`
	ImprovedText string          `json:"improved_text"`
	Error        string          `json:"error,omitempty"`
	Result       *PipelineResult `json:"result"`
}
