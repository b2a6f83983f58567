// Package sentiment scores text with a rule-based lexicon: valence per word,
// negation and intensity modifiers, "but" shifts, emphasis from exclamation
// marks and capitals, then normalization of the sum into [-1, 1].
package sentiment

import (
	"math"
	"strings"
	"unicode"

	"github.com/mohammad-safakhou/newslens/models"
)

const (
	// alpha approximates the maximum expected raw sum.
	alpha            = 15.0
	negationScalar   = -0.74
	capsIncrement    = 0.733
	exclaimIncrement = 0.292
	maxExclaims      = 4

	// PositiveThreshold and NegativeThreshold split compound scores into labels.
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// Scorer computes compound sentiment scores. The zero value is ready to use.
type Scorer struct{}

// New returns a Scorer.
func New() *Scorer { return &Scorer{} }

// Score returns the compound score of text in [-1, 1]. Empty or
// lexicon-free text scores 0.
func (s *Scorer) Score(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	mixedCase := hasMixedCase(tokens)

	valences := make([]float64, len(tokens))
	butAt := -1
	for i, tok := range tokens {
		word := tok.lower
		if word == "but" && butAt == -1 {
			butAt = i
		}
		v, ok := lexicon[word]
		if !ok {
			continue
		}
		if mixedCase && tok.allCaps {
			v += math.Copysign(capsIncrement, v)
		}
		for back := 1; back <= 3 && i-back >= 0; back++ {
			prev := tokens[i-back]
			if b, ok := boosters[prev.lower]; ok {
				scale := 1.0 - 0.05*float64(back-1)
				boost := b * scale
				if mixedCase && prev.allCaps {
					boost += math.Copysign(capsIncrement, b)
				}
				v += math.Copysign(boost, v)
			}
			if isNegation(prev.lower) {
				v *= negationScalar
			}
		}
		valences[i] = v
	}

	if butAt >= 0 {
		for i := range valences {
			switch {
			case i < butAt:
				valences[i] *= 0.5
			case i > butAt:
				valences[i] *= 1.5
			}
		}
	}

	var sum float64
	for _, v := range valences {
		sum += v
	}
	if sum == 0 {
		return 0
	}
	sum += math.Copysign(emphasis(text), sum)
	return normalize(sum)
}

// Label maps a compound score onto a categorical label.
func Label(score float64) models.SentimentLabel {
	switch {
	case score >= PositiveThreshold:
		return models.SentimentPositive
	case score <= NegativeThreshold:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func normalize(x float64) float64 {
	n := x / math.Sqrt(x*x+alpha)
	return math.Max(-1, math.Min(1, n))
}

func emphasis(text string) float64 {
	n := strings.Count(text, "!")
	if n > maxExclaims {
		n = maxExclaims
	}
	return float64(n) * exclaimIncrement
}

type token struct {
	lower   string
	allCaps bool
}

func tokenize(text string) []token {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
	out := make([]token, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f == "" {
			continue
		}
		lower := strings.ToLower(strings.ReplaceAll(f, "'", ""))
		out = append(out, token{lower: lower, allCaps: len([]rune(f)) > 1 && f == strings.ToUpper(f) && f != lower})
	}
	return out
}

func hasMixedCase(tokens []token) bool {
	caps := 0
	for _, t := range tokens {
		if t.allCaps {
			caps++
		}
	}
	return caps > 0 && caps < len(tokens)
}

func isNegation(word string) bool {
	if _, ok := negations[word]; ok {
		return true
	}
	// contractions with the apostrophe already stripped: "hasnt", "mustnt"
	return len(word) > 4 && strings.HasSuffix(word, "nt") && strings.ContainsRune("sdr", rune(word[len(word)-3]))
}
