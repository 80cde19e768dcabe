// Package textstats computes deterministic statistics, tone scores and the
// language of a text. Nothing here calls the upstream model.
package textstats

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vietddude/gramo/internal/core/domain"
)

var (
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	sentenceRe = regexp.MustCompile(`[.!?]+`)
)

const (
	complexWordLen     = 6
	complexSentenceLen = 15
)

// Calculate returns word, sentence and readability statistics.
//
// Readability is 100 minus a weighted penalty on sentence length, word
// length and the share of long words and long sentences, clamped to 0..100.
func Calculate(text string) domain.TextStats {
	words := wordRe.FindAllString(strings.ToLower(text), -1)

	var sentences []string
	for _, s := range sentenceRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	var avgWordLen, avgSentLen, wordComplexity, sentenceComplexity float64
	if len(words) > 0 {
		letters, long := 0, 0
		for _, w := range words {
			n := utf8.RuneCountInString(w)
			letters += n
			if n > complexWordLen {
				long++
			}
		}
		avgWordLen = float64(letters) / float64(len(words))
		wordComplexity = float64(long) / float64(len(words))
	}
	if len(sentences) > 0 {
		avgSentLen = float64(len(words)) / float64(len(sentences))
		long := 0
		for _, s := range sentences {
			if len(strings.Fields(s)) > complexSentenceLen {
				long++
			}
		}
		sentenceComplexity = float64(long) / float64(len(sentences))
	}

	readability := 100 - (0.2*avgSentLen + 5.0*avgWordLen + 8.0*wordComplexity + 6.0*sentenceComplexity)
	readability = math.Max(0, math.Min(100, readability))

	return domain.TextStats{
		WordCount:         len(words),
		SentenceCount:     len(sentences),
		AvgWordLength:     round1(avgWordLen),
		AvgSentenceLength: round1(avgSentLen),
		ReadabilityScore:  round1(readability),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
