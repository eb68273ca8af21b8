package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// AnswerValue is a single-choice/free-text string or a set of selected options.
// On the wire it is either a JSON string or a JSON array of strings.
type AnswerValue struct {
	Text    string
	Choices []string
	Multi   bool
}

// TextAnswer builds a single string answer.
func TextAnswer(text string) AnswerValue {
	return AnswerValue{Text: text}
}

// ChoiceAnswer builds a multi-select answer. Duplicates are dropped, first
// occurrence order is kept.
func ChoiceAnswer(choices ...string) AnswerValue {
	seen := make(map[string]struct{}, len(choices))
	set := make([]string, 0, len(choices))
	for _, c := range choices {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		set = append(set, c)
	}
	return AnswerValue{Choices: set, Multi: true}
}

func (a AnswerValue) Clone() AnswerValue {
	if a.Choices != nil {
		a.Choices = append([]string(nil), a.Choices...)
	}
	return a
}

// Equal compares two answers by kind and content.
func (a AnswerValue) Equal(b AnswerValue) bool {
	if a.Multi != b.Multi {
		return false
	}
	if !a.Multi {
		return a.Text == b.Text
	}
	if len(a.Choices) != len(b.Choices) {
		return false
	}
	for i := range a.Choices {
		if a.Choices[i] != b.Choices[i] {
			return false
		}
	}
	return true
}

func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.Multi {
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	}
	return json.Marshal(a.Text)
}

var errInvalidAnswer = errors.New("answer must be a string or an array of strings")

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errInvalidAnswer
	}
	if trimmed[0] == '[' {
		var choices []string
		if err := json.Unmarshal(trimmed, &choices); err != nil {
			return errInvalidAnswer
		}
		*a = ChoiceAnswer(choices...)
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return errInvalidAnswer
	}
	*a = TextAnswer(text)
	return nil
}
