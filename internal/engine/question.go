package engine

import "strings"

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionFillBlank      QuestionType = "fill-blank"
	QuestionImage          QuestionType = "image"
)

// Question is read-only to the engine; the provider fixes the list at
// session creation.
type Question struct {
	ID       uint
	Text     string
	Type     QuestionType
	Options  []string
	ImageURL string
	Answer   AnswerKey
}

// AnswerKey is a tagged variant: a single canonical answer for
// multiple-choice, true-false and image questions, or a set of acceptable
// equivalents for fill-blank. The variant is fixed by the question type, not
// inspected at runtime.
type AnswerKey struct {
	exact string
	anyOf []string
}

func Exact(answer string) AnswerKey {
	return AnswerKey{exact: answer}
}

func AnyOf(answers ...string) AnswerKey {
	return AnswerKey{anyOf: answers}
}

// Matches compares a raw submission against the key, case-insensitively and
// ignoring surrounding whitespace.
func (k AnswerKey) Matches(raw string) bool {
	got := normalize(raw)
	if k.anyOf != nil {
		for _, a := range k.anyOf {
			if normalize(a) == got {
				return true
			}
		}
		return false
	}
	return normalize(k.exact) == got
}

// Canonical is the answer string shown to players after a round closes.
func (k AnswerKey) Canonical() string {
	if k.anyOf != nil {
		return strings.Join(k.anyOf, " / ")
	}
	return k.exact
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
