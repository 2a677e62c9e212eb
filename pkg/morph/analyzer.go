// Package morph tokenizes Japanese text with kagome and classifies tokens by part of speech.
package morph

import (
	"regexp"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token represents a single analyzed unit of text.
type Token struct {
	Surface  string   // The text as it appears (e.g. "行っ")
	Category Category // Resolved from Features[0]
	Features []string // e.g. ["動詞", "自立", "*", "*", ...] (IPA feature list)
}

// Analyzer handles text segmentation.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// NewAnalyzer creates a new tokenizer instance.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze breaks text into tokens, keeping every non-blank surface in order.
func (a *Analyzer) Analyze(text string) ([]Token, error) {
	tokens := a.t.Tokenize(text)
	var result []Token

	for _, token := range tokens {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}

		features := token.Features()
		pos := ""
		if len(features) > 0 {
			pos = features[0]
		}

		result = append(result, Token{
			Surface:  token.Surface,
			Category: ParseCategory(pos),
			Features: features,
		})
	}

	return result, nil
}

// Salient returns the surfaces of tokens whose category is salient, in order.
func Salient(tokens []Token) []string {
	out := []string{}
	for _, t := range tokens {
		if t.Category.Salient() {
			out = append(out, t.Surface)
		}
	}
	return out
}

// SplitSentences splits a corpus line on 。 and returns the trimmed, non-empty pieces.
func SplitSentences(line string) []string {
	var sentences []string
	for _, s := range strings.Split(line, "。") {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content, so furigana is not learned as part of the surrounding sentence.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}
