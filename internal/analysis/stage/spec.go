package stage

import (
	"fmt"

	"github.com/vietddude/gramo/internal/core/domain"
)

// Spec describes one analysis stage. Specs are static and shared by all requests.
type Spec struct {
	Name         domain.StageName
	SystemPrompt string
	// BuildPrompt renders the user message for the current text.
	BuildPrompt func(text, style, goal string) string
	// ResultKeys are the analysis fields the stage is expected to return.
	ResultKeys []string
}

// Grammar corrects grammar, spelling and punctuation.
var Grammar = Spec{
	Name: domain.StageGrammar,
	SystemPrompt: `You are a Grammar Analysis Agent specialized in identifying and correcting text issues.

TASK:
Analyze the text and provide detailed feedback on grammar, spelling, and punctuation.

OUTPUT FORMAT:
Return only a JSON object with this structure:
{
    "analysis": {
        "issues": [
            {
                "type": "grammar/spelling/punctuation",
                "text": "problematic text",
                "correction": "suggested correction",
                "explanation": "why this needs correction"
            }
        ],
        "improved_text": "complete corrected version of the text",
        "confidence_score": 0-100
    }
}`,
	BuildPrompt: func(text, _, _ string) string {
		return fmt.Sprintf("Analyze this text and provide detailed grammar feedback: %s", text)
	},
	ResultKeys: []string{"issues", "improved_text", "confidence_score"},
}

// Style rewrites for clarity and the requested register.
var Style = Spec{
	Name: domain.StageStyle,
	SystemPrompt: `You are a Style Analysis Agent focused on improving writing clarity and impact.

TASK:
Analyze the text's style, tone, and readability.

OUTPUT FORMAT:
Return only a JSON object with this structure:
{
    "analysis": {
        "style_score": 0-100,
        "tone": "formal/informal/technical/casual",
        "suggestions": [
            {
                "aspect": "clarity/conciseness/tone/etc",
                "current": "current problematic text",
                "improvement": "suggested improvement",
                "rationale": "why this improvement helps"
            }
        ],
        "improved_text": "complete improved version"
    }
}`,
	BuildPrompt: func(text, style, _ string) string {
		if style == "" {
			style = "clarity"
		}
		return fmt.Sprintf("Analyze this text for style improvements with focus on %s: %s", style, text)
	},
	ResultKeys: []string{"style_score", "tone", "suggestions", "improved_text"},
}

// Structure reorganizes flow and paragraphs.
var Structure = Spec{
	Name: domain.StageStructure,
	SystemPrompt: `You are an Editor Agent specializing in text structure and organization.

TASK:
Analyze the text's structure, flow, and organization.

OUTPUT FORMAT:
Return only a JSON object with this structure:
{
    "analysis": {
        "structure_score": 0-100,
        "flow_issues": [
            {
                "type": "transition/paragraph/organization",
                "location": "problematic section",
                "suggestion": "improvement suggestion",
                "rationale": "why this improves the text"
            }
        ],
        "improved_text": "complete restructured version"
    }
}`,
	BuildPrompt: func(text, _, goal string) string {
		if goal == "" {
			goal = "improve clarity"
		}
		return fmt.Sprintf("Analyze this text for structural improvements with goal: %s: %s", goal, text)
	},
	ResultKeys: []string{"structure_score", "flow_issues", "improved_text"},
}

var specs = map[domain.StageName]Spec{
	domain.StageGrammar:   Grammar,
	domain.StageStyle:     Style,
	domain.StageStructure: Structure,
}

// ForName returns the spec registered for name.
func ForName(name domain.StageName) (Spec, bool) {
	s, ok := specs[name]
	return s, ok
}
