package pipeline

import (
	"regexp"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

// DefaultAffirmative is used when no affirmative phrases are configured.
var DefaultAffirmative = []string{"yes"}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}']+`)

// Classifier decides whether a reply is affirmative. A phrase matches as
// whole words, case-insensitively. Anything without a match is a no.
type Classifier struct {
	phrases [][]string
}

// NewClassifier builds a classifier for the given phrases. Blank phrases are
// dropped; an empty list falls back to DefaultAffirmative.
func NewClassifier(phrases []string) *Classifier {
	c := &Classifier{}
	for _, ph := range phrases {
		if words := tokenize(ph); len(words) > 0 {
			c.phrases = append(c.phrases, words)
		}
	}
	if len(c.phrases) == 0 && len(phrases) == 0 {
		return NewClassifier(DefaultAffirmative)
	}
	return c
}

// Affirmative reports whether body contains an affirmative phrase.
func (c *Classifier) Affirmative(body string) bool {
	words := tokenize(body)
	for i := range words {
		for _, ph := range c.phrases {
			if hasPhraseAt(words, i, ph) {
				return true
			}
		}
	}
	return false
}

// Classify maps a reply body to replied_yes or replied_no.
func (c *Classifier) Classify(body string) model.Status {
	if c.Affirmative(body) {
		return model.StatusRepliedYes
	}
	return model.StatusRepliedNo
}

func tokenize(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	words := wordRe.FindAllString(s, -1)
	for i, w := range words {
		words[i] = strings.Trim(w, "'")
	}
	return words
}

func hasPhraseAt(words []string, i int, phrase []string) bool {
	if i+len(phrase) > len(words) {
		return false
	}
	for j, w := range phrase {
		if words[i+j] != w {
			return false
		}
	}
	return true
}
