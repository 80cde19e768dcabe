package textstats

import (
	"testing"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		words     int
		sentences int
		avgWord   float64
		avgSent   float64
	}{
		{"simple", "He go to school everyday.", 5, 1, 4.0, 5.0},
		{"two sentences", "I run. You walk!", 4, 2, 2.8, 2.0},
		{"empty", "", 0, 0, 0, 0},
		{"punctuation only", "...!?", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.text)
			if got.WordCount != tt.words || got.SentenceCount != tt.sentences {
				t.Errorf("counts = %d/%d, want %d/%d", got.WordCount, got.SentenceCount, tt.words, tt.sentences)
			}
			if got.AvgWordLength != tt.avgWord || got.AvgSentenceLength != tt.avgSent {
				t.Errorf("averages = %v/%v, want %v/%v", got.AvgWordLength, got.AvgSentenceLength, tt.avgWord, tt.avgSent)
			}
			if got.ReadabilityScore < 0 || got.ReadabilityScore > 100 {
				t.Errorf("readability %v out of range", got.ReadabilityScore)
			}
		})
	}
}

func TestCalculateReadability(t *testing.T) {
	// 5 words, 1 sentence: 100 - (0.2*5 + 5*4 + 8*(1/5) + 0) = 77.4
	got := Calculate("He go to school everyday.")
	if got.ReadabilityScore != 77.4 {
		t.Errorf("ReadabilityScore = %v, want 77.4", got.ReadabilityScore)
	}
	if Calculate("").ReadabilityScore != 100 {
		t.Error("empty text should score 100")
	}
}

func TestCalculateUnicodeWords(t *testing.T) {
	got := Calculate("Café déjà vu.")
	if got.WordCount != 3 {
		t.Errorf("WordCount = %d, want 3", got.WordCount)
	}
}

func TestTone(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		primary string
	}{
		{"no signals", "The cat sat on the mat.", "balanced"},
		{"formal", "Therefore, the results demonstrate the effect. Furthermore, we conclude it holds.", "formal"},
		{"casual", "This is just awesome stuff, basically cool!!", "casual"},
		{"technical", "Configure the system to validate data before the process runs the function.", "technical"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tone(tt.text)
			if got.PrimaryTone != tt.primary {
				t.Errorf("PrimaryTone = %q, want %q (scores %v)", got.PrimaryTone, tt.primary, got.ToneScores)
			}
			if len(got.ToneScores) != 4 {
				t.Errorf("expected 4 tone scores, got %v", got.ToneScores)
			}
		})
	}
}

func TestToneNeutralScores(t *testing.T) {
	got := Tone("")
	for name, score := range got.ToneScores {
		if score != 25 {
			t.Errorf("%s = %v, want 25", name, score)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	code, conf := DetectLanguage("The quick brown fox jumps over the lazy dog while the children watch from the window.")
	if code != "en" {
		t.Errorf("DetectLanguage() = %q, want en", code)
	}
	if conf <= 0 || conf > 1 {
		t.Errorf("confidence %v out of range", conf)
	}

	if code, _ := DetectLanguage("   "); code != "" {
		t.Errorf("DetectLanguage(blank) = %q, want empty", code)
	}
}
