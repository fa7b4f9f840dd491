// Package question defines the question-bank collaborator the game core
// reads from. The core never writes questions.
package question

import (
	"context"
	"errors"

	"github.com/mRedzuan451/quiz-game-backend/internal/engine"
)

// ErrInsufficientQuestions means the bank cannot cover the requested round
// count for the mode.
var ErrInsufficientQuestions = errors.New("not enough questions for this mode")

// Provider returns an ordered list of exactly count questions for a mode,
// or ErrInsufficientQuestions.
type Provider interface {
	FetchRandomQuestions(ctx context.Context, mode engine.Mode, count int) ([]engine.Question, error)
}
