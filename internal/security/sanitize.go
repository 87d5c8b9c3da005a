package security

import (
	"strings"
	"unicode/utf8"
)

const (
	filteredMarker = "[FILTERED]"
	encodedMarker  = "[ENCODED]"
	redactedMarker = "[REDACTED]"
)

// Sanitize removes what Validate would flag: phrase-pattern matches become
// [FILTERED], encoded runs become [ENCODED], over-long lines are cut to the
// level's limit, and at strict level keyword terms become [REDACTED]. Every
// filter runs again until a full pass changes nothing, so the output contains
// no match of the four phrase-pattern classes.
func Sanitize(text string, level Level) SanitizeResult {
	if _, err := ParseLevel(string(level)); err != nil {
		level = LevelMedium
	}

	res := SanitizeResult{Level: level, Removed: []string{}, FiltersApplied: []string{}}
	applied := make(map[string]bool)
	mark := func(filter string) {
		if !applied[filter] {
			applied[filter] = true
			res.FiltersApplied = append(res.FiltersApplied, filter)
		}
	}
	replace := func(p namedPattern, s, marker string) string {
		return p.replaceAll(s, func(m string) string {
			res.Removed = append(res.Removed, m)
			return marker
		})
	}

	// Each changing pass consumes input, so len(text) passes always settle.
	out := text
	for pass := 0; pass <= len(text); pass++ {
		before := out

		var cut []string
		out, cut = truncateLines(out, level.maxLineLength())
		if len(cut) > 0 {
			res.Removed = append(res.Removed, cut...)
			mark("line_truncation")
		}

		for _, class := range patternClasses {
			for _, p := range class.patterns {
				if p.re.MatchString(out) {
					out = replace(p, out, filteredMarker)
					mark(string(class.kind))
				}
			}
		}

		for _, h := range encodingHeuristics {
			if h.re.MatchString(out) {
				out = replace(namedPattern{name: h.name, re: h.re}, out, encodedMarker)
				mark(string(AttemptEncoding))
			}
		}

		if level == LevelStrict {
			if keywordPattern.re.MatchString(out) {
				out = replace(keywordPattern, out, redactedMarker)
				mark(string(AttemptKeyword))
			}
			for _, term := range keywordTermsCJK {
				if n := strings.Count(out, term); n > 0 {
					for i := 0; i < n; i++ {
						res.Removed = append(res.Removed, term)
					}
					out = strings.ReplaceAll(out, term, redactedMarker)
					mark(string(AttemptKeyword))
				}
			}
		}

		if out == before {
			break
		}
	}

	res.Text = out
	return res
}

// truncateLines cuts every line longer than max runes, returning the new
// text and the removed tails.
func truncateLines(text string, max int) (string, []string) {
	lines := strings.Split(text, "\n")
	var cut []string
	for i, line := range lines {
		if utf8.RuneCountInString(line) <= max {
			continue
		}
		r := []rune(line)
		cut = append(cut, string(r[max:]))
		lines[i] = string(r[:max])
	}
	if cut == nil {
		return text, nil
	}
	return strings.Join(lines, "\n"), cut
}
