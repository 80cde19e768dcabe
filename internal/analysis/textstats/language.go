package textstats

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// Languages the detector distinguishes between. Keeping the set small keeps
// model memory bounded.
var detectable = []lingua.Language{
	lingua.English,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Vietnamese,
}

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

func languageDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(detectable...).
			Build()
	})
	return detector
}

// DetectLanguage returns the ISO 639-1 code of text and the detector's
// confidence. It returns "" when the language cannot be told apart.
func DetectLanguage(text string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return "", 0
	}
	d := languageDetector()
	lang, ok := d.DetectLanguageOf(text)
	if !ok {
		return "", 0
	}
	code := strings.ToLower(lang.IsoCode639_1().String())
	return code, d.ComputeLanguageConfidence(text, lang)
}
