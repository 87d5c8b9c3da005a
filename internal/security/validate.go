package security

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate scores text for prompt-injection risk at the given level. It never
// fails: the caller always gets a report and decides policy.
func Validate(text string, level Level) Report {
	if _, err := ParseLevel(string(level)); err != nil {
		level = LevelMedium
	}

	var (
		attempts []Attempt
		recs     []string
		risk     int
	)

	for _, class := range patternClasses {
		fired := false
		for _, p := range class.patterns {
			for _, m := range p.findAll(text) {
				attempts = append(attempts, Attempt{
					Type:       class.kind,
					Pattern:    p.name,
					Match:      m,
					Confidence: class.confidence,
					Risk:       patternRisk,
				})
				risk += patternRisk
				fired = true
			}
		}
		if fired {
			recs = append(recs, class.recommendation)
		}
	}

	if terms := keywordHits(text); len(terms) > 0 {
		count := len(terms)
		attempts = append(attempts, Attempt{
			Type:       AttemptKeyword,
			Pattern:    "keyword_list",
			Match:      strings.Join(terms, ", "),
			Confidence: math.Min(keywordConfMax, keywordConfPer*float64(count)),
			Risk:       keywordRisk * count,
		})
		risk += keywordRisk * count
		recs = append(recs, "Review injection-adjacent vocabulary: "+strings.Join(terms, ", ")+".")
	}

	encoded := false
	for _, h := range encodingHeuristics {
		if m := h.re.FindString(text); m != "" {
			attempts = append(attempts, Attempt{
				Type:       AttemptEncoding,
				Pattern:    h.name,
				Match:      clip(m, 60),
				Confidence: 0.5,
				Risk:       encodingRisk,
			})
			risk += encodingRisk
			encoded = true
		}
	}
	if encoded {
		recs = append(recs, "Decode or remove encoded content before it reaches the model.")
	}

	structural := structuralAttempts(text)
	for _, a := range structural {
		risk += a.Risk
	}
	attempts = append(attempts, structural...)
	if len(structural) > 0 {
		recs = append(recs, "Shorten or restructure the text; its shape is typical of payload smuggling.")
	}

	if risk > 100 {
		risk = 100
	}
	safe := risk < level.Threshold()
	if !safe {
		recs = append(recs, fmt.Sprintf("Risk %d meets the %s threshold of %d: sanitize or reject the text.", risk, level, level.Threshold()))
	}
	if attempts == nil {
		attempts = []Attempt{}
	}
	if recs == nil {
		recs = []string{}
	}

	return Report{
		IsSafe:           safe,
		RiskScore:        risk,
		Level:            level,
		DetectedAttempts: attempts,
		Recommendations:  recs,
	}
}

// keywordHits returns the distinct keyword terms present in text, lower-cased.
func keywordHits(text string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, m := range keywordPattern.findAll(text) {
		term := strings.ToLower(strings.Join(strings.Fields(m), " "))
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	for _, term := range keywordTermsCJK {
		if strings.Contains(text, term) && !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	return terms
}

func structuralAttempts(text string) []Attempt {
	var out []Attempt
	add := func(name string, risk int, conf float64) {
		out = append(out, Attempt{Type: AttemptStructural, Pattern: name, Confidence: conf, Risk: risk})
	}

	runes := utf8.RuneCountInString(text)
	if runes > maxTextLength {
		add("excessive_length", lengthRisk, 0.3)
	}
	if hasRepeatRun(text, repeatRunLength) {
		add("repeated_characters", repeatRisk, 0.4)
	}
	if strings.Count(text, "\n")+1 > maxLines {
		add("excessive_lines", lineCountRisk, 0.3)
	}
	if runes > 0 && float64(specialCount(text))/float64(runes) > maxSpecialDensity {
		add("special_character_density", densityRisk, 0.4)
	}
	return out
}

// hasRepeatRun reports whether some rune repeats n or more times in a row.
func hasRepeatRun(text string, n int) bool {
	var prev rune = -1
	run := 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

// specialCount counts runes that are neither word characters, CJK, nor
// whitespace.
func specialCount(text string) int {
	n := 0
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', unicode.IsSpace(r):
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
		default:
			n++
		}
	}
	return n
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
