package security

import (
	"regexp"
	"strings"
)

// Risk increments per detection.
const (
	patternRisk    = 25
	keywordRisk    = 10
	encodingRisk   = 15
	keywordConfMax = 0.7
	keywordConfPer = 0.2
)

type namedPattern struct {
	name  string
	re    *regexp.Regexp
	group int // submatch holding the reported text
}

// patternClass is one of the four phrase families. Every match of any of its
// patterns adds patternRisk.
type patternClass struct {
	kind           AttemptType
	confidence     float64
	recommendation string
	patterns       []namedPattern
}

// notAfterLetter stands in for a leading \b. A digit, underscore or
// encoded run directly before the phrase must not hide it, but a letter
// must, so "pseudo" never reads as "sudo".
const notAfterLetter = `(?:^|[^\p{L}])`

// compile builds a pattern that may start anywhere.
func compile(name, expr string) namedPattern {
	return namedPattern{name: name, re: regexp.MustCompile(expr)}
}

// guarded builds a case-insensitive pattern that may not start inside a
// word. Its leading token is common as the tail of ordinary words.
func guarded(name, expr string) namedPattern {
	return namedPattern{name: name, re: regexp.MustCompile(`(?i)` + notAfterLetter + `(` + expr + `)`), group: 1}
}

// findAll returns every match, without the guard prefix.
func (p namedPattern) findAll(text string) []string {
	var out []string
	for _, m := range p.re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[p.group])
	}
	return out
}

// replaceAll replaces every match with repl(match), keeping the guard prefix.
func (p namedPattern) replaceAll(text string, repl func(string) string) string {
	locs := p.re.FindAllStringSubmatchIndex(text, -1)
	if locs == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[2*p.group], loc[2*p.group+1]
		b.WriteString(text[last:start])
		b.WriteString(repl(text[start:end]))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

var patternClasses = []patternClass{
	{
		kind:           AttemptDirectInjection,
		confidence:     0.9,
		recommendation: "Remove phrasing that tells the model to discard or replace its instructions.",
		patterns: []namedPattern{
			compile("ignore_previous", `(?i)(?:ignore|disregard|forget|skip|override)\s+(?:all\s+|any\s+|the\s+|your\s+|of\s+)*(?:previous|prior|above|earlier|preceding|original|system)\s+(?:instructions?|prompts?|rules?|directions?|directives?|context)\b`),
			compile("new_instructions", `(?i)(?:new|updated|real)\s+(?:instructions?|rules?|directives?)\s*:`),
			compile("instead_do", `(?i)instead\s*,?\s+(?:you\s+)?(?:must|should|will)\s+(?:now\s+)?(?:only\s+)?(?:obey|follow|do)\b`),
			compile("ignore_previous_zh", `(?:忽略|无视|忘记)(?:之前|以上|前面|所有|先前)的?(?:指令|指示|说明|提示|规则)`),
		},
	},
	{
		kind:           AttemptRolePlay,
		confidence:     0.8,
		recommendation: "Strip attempts to reassign the persona's identity or role.",
		patterns: []namedPattern{
			compile("you_are_now", `(?i)you\s+are\s+(?:now|no\s+longer)\s+(?:a|an|the|my|in)?\b`),
			compile("pretend_to_be", `(?i)(?:pretend|imagine|suppose)\s+(?:that\s+)?(?:you\s+are|to\s+be|you're)\b`),
			compile("roleplay_as", `(?i)role-?\s?play\s+as\b`),
			guarded("persona_mode", `(?:DAN|developer|god|unrestricted)\s+mode\b`),
			compile("from_now_on", `(?i)from\s+now\s+on\s*,?\s+you\b`),
			compile("you_are_now_zh", `你现在是|扮演(?:一个|一名)?`),
		},
	},
	{
		kind:           AttemptPrivilegeEscalation,
		confidence:     0.85,
		recommendation: "Reject requests for elevated access; permissions come from assigned roles only.",
		patterns: []namedPattern{
			compile("grant_access", `(?i)(?:grant|give|assign)\s+(?:me|yourself|us)\s+(?:full\s+|unrestricted\s+)?(?:admin|administrator|root|elevated|superuser|full)\s+(?:access|privileges?|permissions?|rights|role)\b`),
			compile("bypass_controls", `(?i)(?:bypass|disable|circumvent|turn\s+off)\s+(?:all\s+|the\s+|your\s+)?(?:security|safety|restrictions?|filters?|guardrails?|content\s+policy)\b`),
			guarded("elevated_mode", `(?:enable|enter|activate)\s+(?:admin|root|sudo|maintenance|debug)\s+mode\b`),
			guarded("run_as_root", `(?:sudo\s+\S+|run\s+as\s+(?:root|admin(?:istrator)?))\b`),
		},
	},
	{
		kind:           AttemptEscapeReveal,
		confidence:     0.8,
		recommendation: "Remove attempts to expose hidden instructions or to break out of the prompt frame.",
		patterns: []namedPattern{
			compile("reveal_prompt", `(?i)(?:reveal|show|print|display|repeat|output|leak|tell\s+me)\s+(?:me\s+)?(?:your|the)\s+(?:full\s+|entire\s+|original\s+|hidden\s+|initial\s+)?(?:system\s+prompt|instructions|prompt|configuration|rules)\b`),
			compile("chat_markup", `(?i)(?:</?\s*system\s*>|\[/?INST\]|<\|im_(?:start|end)\|>|<\|endoftext\|>)`),
			compile("heading_override", `(?i)#{2,}\s*(?:system|instructions?)\b`),
			compile("end_of_prompt", `(?i)end\s+of\s+(?:the\s+)?(?:system\s+)?(?:prompt|instructions)\b`),
		},
	},
}

// keywordTerms are injection-adjacent words. Each distinct term present adds
// keywordRisk.
var keywordTerms = []string{
	"jailbreak",
	"bypass",
	"override",
	"ignore",
	"disregard",
	"system prompt",
	"unrestricted",
	"uncensored",
	"unfiltered",
	"developer mode",
	"admin mode",
	"sudo",
	"root access",
	"prompt injection",
}

// keywordTermsCJK are matched by plain substring since \b does not apply to
// CJK text.
var keywordTermsCJK = []string{
	"越狱",
	"忽略",
	"系统提示",
	"绕过",
}

var keywordPattern = func() namedPattern {
	quoted := make([]string, len(keywordTerms))
	for i, term := range keywordTerms {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(term), " ", `\s+`)
	}
	return guarded("keyword_list", `(?:`+strings.Join(quoted, "|")+`)\b`)
}()

type encodingHeuristic struct {
	name string
	re   *regexp.Regexp
}

var encodingHeuristics = []encodingHeuristic{
	{"base64_run", regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`)},
	{"percent_encoding", regexp.MustCompile(`(?:%[0-9A-Fa-f]{2}){3,}`)},
	{"unicode_escape", regexp.MustCompile(`(?:\\u[0-9A-Fa-f]{4}|\\x[0-9A-Fa-f]{2}){2,}`)},
	{"html_entities", regexp.MustCompile(`(?:&#?[0-9A-Za-z]{2,8};){2,}`)},
	{"non_ascii_run", regexp.MustCompile(`[^\x00-\x7F\p{Han}\p{Hiragana}\p{Katakana}\p{Hangul}\p{P}\s]{30,}`)},
}

// Structural heuristics.
const (
	maxTextLength     = 5000
	lengthRisk        = 20
	repeatRunLength   = 20
	repeatRisk        = 15
	maxLines          = 50
	lineCountRisk     = 10
	maxSpecialDensity = 0.30
	densityRisk       = 15
)
