package tokens

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ziadkadry99/personaengine/internal/capability"
)

// CompressionLevel controls how much of a capability record survives
// compression.
type CompressionLevel string

const (
	CompressionLight  CompressionLevel = "light"
	CompressionMedium CompressionLevel = "medium"
	CompressionHeavy  CompressionLevel = "heavy"
)

type limits struct {
	tags         int
	toolChars    int
	restrictions int
}

var levelLimits = map[CompressionLevel]limits{
	CompressionLight:  {tags: 8, toolChars: 30, restrictions: 5},
	CompressionMedium: {tags: 5, toolChars: 20, restrictions: 3},
	CompressionHeavy:  {tags: 3, toolChars: 15, restrictions: 2},
}

// ParseCompression parses a compression level. The empty string is medium.
func ParseCompression(s string) (CompressionLevel, error) {
	if s == "" {
		return CompressionMedium, nil
	}
	l := CompressionLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelLimits[l]; !ok {
		return "", fmt.Errorf("unknown compression level %q (want light, medium or heavy)", s)
	}
	return l, nil
}

func (l CompressionLevel) limits() limits {
	if lim, ok := levelLimits[l]; ok {
		return lim
	}
	return levelLimits[CompressionMedium]
}

// Compressed is the prompt-sized form of a capability record.
type Compressed struct {
	ExpertiseTags   []string `json:"expertise_tags"`
	ToolSummary     string   `json:"tool_summary"`
	KeyRestrictions []string `json:"key_restrictions"`
}

// relevantFallback is how many entries a field keeps when no task keyword
// matches it.
const relevantFallback = 3

// Compress trims a capability record to the level's limits: at most N
// expertise tags, a tool summary of at most M runes and at most K
// restrictions, each taken in declaration order.
func Compress(c capability.Capability, level CompressionLevel) Compressed {
	lim := level.limits()
	return Compressed{
		ExpertiseTags:   head(c.Expertise, lim.tags),
		ToolSummary:     summarizeTools(c.Tools, lim.toolChars),
		KeyRestrictions: head(c.Restrictions, lim.restrictions),
	}
}

// SelectRelevant keeps the expertise and tool entries that mention a word
// of the task, then compresses the result. A field with no matching entry
// keeps its first three entries. Restrictions are always kept.
func SelectRelevant(task string, c capability.Capability, level CompressionLevel) Compressed {
	words := Keywords(task)
	filtered := capability.Capability{
		PersonaID:    c.PersonaID,
		Expertise:    relevant(c.Expertise, words),
		Tools:        relevant(c.Tools, words),
		Restrictions: c.Restrictions,
	}
	return Compress(filtered, level)
}

// Keywords splits text into distinct lower-cased runs of letters and digits.
// CJK runs count as words. Single ASCII characters are dropped since they
// match nearly every entry.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 && f[0] < utf8.RuneSelf {
			continue
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func relevant(entries, words []string) []string {
	var out []string
	for _, e := range entries {
		lower := strings.ToLower(e)
		for _, w := range words {
			if strings.Contains(lower, w) {
				out = append(out, e)
				break
			}
		}
	}
	if len(out) == 0 {
		return head(entries, relevantFallback)
	}
	return out
}

func head(s []string, n int) []string {
	if len(s) <= n {
		return append([]string{}, s...)
	}
	return append([]string{}, s[:n]...)
}

// summarizeTools joins as many leading tools as fit in limit runes. If not
// even the first tool fits, it is cut.
func summarizeTools(tools []string, limit int) string {
	if len(tools) == 0 || limit <= 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	for i, t := range tools {
		sep := ""
		if i > 0 {
			sep = ", "
		}
		n := utf8.RuneCountInString(sep + t)
		if used+n > limit {
			break
		}
		b.WriteString(sep + t)
		used += n
	}
	if used == 0 {
		return string([]rune(tools[0])[:limit])
	}
	return b.String()
}

// Options bound an Optimize call.
type Options struct {
	MaxTokens int
	Model     string
}

// Degradation stages, in the order Optimize tries them.
const (
	StageFull = iota
	StageNoRestrictions
	StageHalfExpertise
	StageToolsOnly
	StageNoBlock
)

// Result is an optimized prompt with its measured size.
type Result struct {
	Prompt     string `json:"prompt"`
	Tokens     int    `json:"tokens"`
	Stage      int    `json:"stage"`
	OverBudget bool   `json:"over_budget"`
}

// Optimizer fits capability blocks into a token budget.
type Optimizer struct {
	counter Counter
}

// NewOptimizer creates an Optimizer measuring with c. A nil counter uses
// ApproxCounter.
func NewOptimizer(c Counter) *Optimizer {
	if c == nil {
		c = ApproxCounter
	}
	return &Optimizer{counter: c}
}

// Count measures text with the optimizer's counter.
func (o *Optimizer) Count(text, model string) int {
	return o.counter.Count(text, model)
}

// Optimize appends the capability block to base, degrading it stage by stage
// until the prompt fits opts.MaxTokens. A non-positive budget means no limit.
// When even the bare base prompt is too long, it is returned with OverBudget
// set.
func (o *Optimizer) Optimize(base string, comp Compressed, opts Options) Result {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	var res Result
	for stage := StageFull; stage <= StageNoBlock; stage++ {
		prompt := base + renderBlock(degrade(comp, stage))
		n := o.counter.Count(prompt, model)
		res = Result{Prompt: prompt, Tokens: n, Stage: stage}
		if opts.MaxTokens <= 0 || n <= opts.MaxTokens {
			return res
		}
	}
	res.OverBudget = true
	return res
}

// degrade returns the block for a stage. Halving rounds down, so a single
// tag is dropped at StageHalfExpertise rather than kept.
func degrade(c Compressed, stage int) Compressed {
	switch stage {
	case StageFull:
		return c
	case StageNoRestrictions:
		return Compressed{ExpertiseTags: c.ExpertiseTags, ToolSummary: c.ToolSummary}
	case StageHalfExpertise:
		return Compressed{ExpertiseTags: head(c.ExpertiseTags, len(c.ExpertiseTags)/2), ToolSummary: c.ToolSummary}
	case StageToolsOnly:
		return Compressed{ToolSummary: c.ToolSummary}
	default:
		return Compressed{}
	}
}

func renderBlock(c Compressed) string {
	var lines []string
	if len(c.ExpertiseTags) > 0 {
		lines = append(lines, "- Expertise: "+strings.Join(c.ExpertiseTags, ", "))
	}
	if c.ToolSummary != "" {
		lines = append(lines, "- Tools: "+c.ToolSummary)
	}
	if len(c.KeyRestrictions) > 0 {
		lines = append(lines, "- Restrictions: "+strings.Join(c.KeyRestrictions, "; "))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\nCapabilities:\n" + strings.Join(lines, "\n")
}
