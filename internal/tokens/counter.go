package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultModel is used when a caller does not name a tokenizer model.
const DefaultModel = "gpt-4"

// fallbackEncoding is tried when the requested model has no registered
// encoding of its own.
const fallbackEncoding = "cl100k_base"

// Counter measures text length in model tokens.
type Counter interface {
	Count(text, model string) int
}

// FuncCounter adapts a plain function to Counter.
type FuncCounter func(text, model string) int

// Count implements Counter.
func (f FuncCounter) Count(text, model string) int { return f(text, model) }

// ApproxCount estimates tokens as ceil(runes/4).
func ApproxCount(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// ApproxCounter counts every model with ApproxCount.
var ApproxCounter Counter = FuncCounter(func(text, _ string) int { return ApproxCount(text) })

// TiktokenCounter counts with the BPE encoding registered for each model and
// falls back to ApproxCount when none can be loaded. Encodings are loaded
// once per model and reused.
type TiktokenCounter struct {
	logger *zap.Logger

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
	missing   map[string]bool
}

// NewTiktokenCounter creates a counter with an empty encoding cache.
func NewTiktokenCounter(logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{
		logger:    logger.Named("tokens"),
		encodings: make(map[string]*tiktoken.Tiktoken),
		missing:   make(map[string]bool),
	}
}

// Count implements Counter.
func (c *TiktokenCounter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	if model == "" {
		model = DefaultModel
	}
	enc := c.encoding(model)
	if enc == nil {
		return ApproxCount(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodings[model]; ok {
		return enc
	}
	if c.missing[model] {
		return nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		c.logger.Debug("no tokenizer available, using length/4 approximation",
			zap.String("model", model), zap.Error(err))
		c.missing[model] = true
		return nil
	}
	c.encodings[model] = enc
	return enc
}
