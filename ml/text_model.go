package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"
)

// KeywordModel is a linear keyword-weight scorer over free text. Each class
// carries a bias and a bag of token weights; raw scores are pushed through a
// softmax so every call yields a full distribution, the way the upstream
// transformer pipeline reports all class scores.
type KeywordModel struct {
	Classes []KeywordClass `json:"classes"`
}

type KeywordClass struct {
	Code     string             `json:"code"`
	Bias     float64            `json:"bias"`
	Keywords map[string]float64 `json:"keywords"`
}

func (m *KeywordModel) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var loaded KeywordModel
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("invalid text model artifact: %w", err)
	}
	if len(loaded.Classes) == 0 {
		return errors.New("invalid text model artifact: no classes")
	}
	for i, class := range loaded.Classes {
		if class.Code == "" {
			return fmt.Errorf("invalid text model artifact: class %d has no code", i)
		}
	}

	*m = loaded
	return nil
}

// Scores returns one score per class, in the artifact's class order.
func (m *KeywordModel) Scores(text string) ([]ClassScore, error) {
	if len(m.Classes) == 0 {
		return nil, errors.New("model not loaded")
	}

	tokens := tokenize(text)

	raw := make([]float64, len(m.Classes))
	for i, class := range m.Classes {
		score := class.Bias
		for _, token := range tokens {
			score += class.Keywords[token]
		}
		raw[i] = score
	}

	// Softmax, shifted by the max for numeric stability.
	maxRaw := raw[0]
	for _, v := range raw[1:] {
		if v > maxRaw {
			maxRaw = v
		}
	}
	var sum float64
	exps := make([]float64, len(raw))
	for i, v := range raw {
		exps[i] = math.Exp(v - maxRaw)
		sum += exps[i]
	}

	scores := make([]ClassScore, len(m.Classes))
	for i, class := range m.Classes {
		scores[i] = ClassScore{Code: class.Code, Score: exps[i] / sum}
	}
	return scores, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
