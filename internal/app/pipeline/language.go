package pipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/trendforge/ingest/internal/app/domain/item"
)

// LanguageDetector tags each item with an IETF BCP-47 short code using a
// deterministic, dependency-free statistical model: a Unicode-script
// histogram first separates CJK/Cyrillic/Arabic scripts, then a
// stopword-overlap count disambiguates Latin-script languages. No library
// in this corpus ships a language identification model (the closest hit,
// francoispqt/gojay, is a JSON encoder with an unrelated name collision),
// so this is a from-scratch reference model rather than an adapted one;
// it is deliberately simple and documented as such in DESIGN.md.
type LanguageDetector struct {
	// MinLength is the minimum combined rune count of title+content
	// required before attempting classification; below it, items are
	// tagged "und" (undetermined). Zero uses Context.Config's value.
	MinLength int
}

func (d *LanguageDetector) Name() string { return "language_detector" }

func (d *LanguageDetector) Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error) {
	minLen := d.MinLength
	if minLen <= 0 {
		minLen = pc.Config.MinLanguageSampleLength
	}
	out := make([]item.Processed, len(items))
	for i, it := range items {
		it.Language = detectLanguage(it.Title+" "+it.Content, minLen)
		out[i] = it
	}
	return out, nil
}

// detectLanguage classifies text, returning "und" when the sample is too
// short or no script/stopword signal clears its threshold.
func detectLanguage(text string, minLen int) string {
	sample := strings.TrimSpace(text)
	if len([]rune(sample)) < minLen {
		return "und"
	}

	if lang, ok := detectByScript(sample); ok {
		return lang
	}
	return detectByStopwords(sample)
}

// detectByScript recognizes scripts that map unambiguously to one language
// code in this detector's supported set.
func detectByScript(text string) (string, bool) {
	var han, hiragana, hangul, cyrillic, arabic, latin, total int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			hiragana++
			total++
		case unicode.Is(unicode.Hangul, r):
			hangul++
			total++
		case unicode.Is(unicode.Han, r):
			han++
			total++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
			total++
		case unicode.Is(unicode.Arabic, r):
			arabic++
			total++
		case unicode.IsLetter(r):
			latin++
			total++
		}
	}
	if total == 0 {
		return "", false
	}
	switch {
	case hiragana > 0 && float64(hiragana) >= 0.1*float64(total):
		return "ja", true
	case hangul > 0 && float64(hangul) >= 0.3*float64(total):
		return "ko", true
	case han > 0 && float64(han) >= 0.3*float64(total):
		return "zh", true
	case cyrillic > 0 && float64(cyrillic) >= 0.3*float64(total):
		return "ru", true
	case arabic > 0 && float64(arabic) >= 0.3*float64(total):
		return "ar", true
	}
	return "", false
}

// stopwords holds a small, high-frequency function-word set per supported
// Latin-script language. Overlap count, not presence/absence of any single
// word, drives the decision.
var stopwords = map[string]map[string]struct{}{
	"en": set("the", "and", "is", "are", "of", "to", "in", "for", "with", "on", "that", "this", "it", "was", "as"),
	"es": set("el", "la", "los", "las", "de", "que", "y", "en", "un", "una", "por", "con", "para", "es", "su"),
	"fr": set("le", "la", "les", "de", "des", "et", "en", "un", "une", "pour", "avec", "que", "est", "au", "du"),
	"de": set("der", "die", "das", "und", "ist", "von", "mit", "den", "ein", "eine", "auf", "zu", "fur", "im", "nicht"),
	"pt": set("o", "a", "os", "as", "de", "que", "e", "em", "um", "uma", "para", "com", "por", "do", "da"),
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// detectByStopwords counts, per language, how many of text's lowercase
// words appear in that language's stopword set, picking the highest scorer.
// Ties and all-zero scores resolve to "und".
func detectByStopwords(text string) string {
	words := strings.Fields(strings.ToLower(text))
	scores := make(map[string]int, len(stopwords))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		for lang, set := range stopwords {
			if _, ok := set[w]; ok {
				scores[lang]++
			}
		}
	}

	best, bestScore := "und", 0
	tie := false
	for lang, score := range scores {
		if score > bestScore {
			best, bestScore, tie = lang, score, false
		} else if score == bestScore && score > 0 {
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return "und"
	}
	return best
}
