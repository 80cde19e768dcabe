package textstats

import (
	"math"
	"regexp"
	"strings"

	"github.com/vietddude/gramo/internal/core/domain"
)

type tonePatterns struct {
	name     string
	weight   float64
	patterns []*regexp.Regexp
}

// Order matters: ties resolve to the earliest tone.
var tones = []tonePatterns{
	{
		name:   "formal",
		weight: 1.2,
		patterns: compile(
			`\b(therefore|furthermore|consequently|thus|hence|accordingly)\b`,
			`\b(moreover|nevertheless|however|despite|although|whereas)\b`,
			`\b(demonstrate|indicate|suggest|conclude|analyze|determine)\b`,
		),
	},
	{
		name:   "casual",
		weight: 1.0,
		patterns: compile(
			`\b(like|just|pretty|kind of|sort of|you know)\b`,
			`\b(anyway|basically|actually|literally|stuff|things)\b`,
			`\b(cool|awesome|nice|great|okay|ok)\b`,
			`!{2,}|\?{2,}`,
		),
	},
	{
		name:   "technical",
		weight: 1.1,
		patterns: compile(
			`\b(specifically|particularly|significantly|methodology|implementation)\b`,
			`\b(system|process|function|data|analysis|result)\b`,
			`\b(configure|implement|integrate|optimize|validate)\b`,
		),
	},
	{
		name:   "friendly",
		weight: 1.0,
		patterns: compile(
			`\b(thanks|please|appreciate|welcome|glad|happy)\b`,
			`\b(love|enjoy|feel|think|believe|hope)\b`,
			`\b(we|our|us|together|share|help)\b`,
			`(?:^|\s)(?::\)|:\(|;\)|\(:)(?:\s|$)`,
		),
	},
}

const (
	balancedTone     = "balanced"
	balancedCutoff   = 30
	neutralToneScore = 25
)

// Tone scores the text against keyword patterns per tone. Scores are
// normalized so that they sum to roughly 100; with no matches every tone
// gets an equal share and the primary tone is "balanced".
func Tone(text string) domain.ToneAnalysis {
	lower := strings.ToLower(text)

	raw := make([]float64, len(tones))
	var total float64
	for i, t := range tones {
		matches := 0
		for _, re := range t.patterns {
			matches += len(re.FindAllStringIndex(lower, -1))
		}
		raw[i] = float64(matches) * t.weight
		total += raw[i]
	}

	scores := make(map[string]float64, len(tones))
	primary, best := "", -1.0
	for i, t := range tones {
		score := float64(neutralToneScore)
		if total > 0 {
			score = math.Round(raw[i]/total*80 + 2)
		}
		scores[t.name] = score
		if score > best {
			primary, best = t.name, score
		}
	}
	if best < balancedCutoff {
		primary = balancedTone
	}

	return domain.ToneAnalysis{PrimaryTone: primary, ToneScores: scores}
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}
