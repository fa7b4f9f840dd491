// Package store holds the gorm-backed collaborators at the edge of the game
// core: question sampling, display-name lookup and finalized result rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mRedzuan451/quiz-game-backend/internal/engine"
	"github.com/mRedzuan451/quiz-game-backend/internal/question"
)

type Question struct {
	ID             uint   `gorm:"primaryKey"`
	Text           string `gorm:"not null"`
	Type           string `gorm:"not null"`
	Category       string
	Difficulty     string
	Mode           string   `gorm:"index;not null"`
	Options        []string `gorm:"serializer:json"`
	CorrectAnswers []string `gorm:"serializer:json;not null"`
	ImageURL       string
	CreatedAt      time.Time
}

type User struct {
	ID        string `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// GameResult is one finalized standing row, one per participant per game.
type GameResult struct {
	ID            uint   `gorm:"primaryKey"`
	Code          string `gorm:"index;not null"`
	HostID        string `gorm:"not null"`
	ParticipantID string `gorm:"not null"`
	DisplayName   string
	Score         int
	Rank          int
	PlayedAt      time.Time
}

func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Question{}, &User{}, &GameResult{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FetchRandomQuestions samples count questions for a mode. Fewer rows than
// requested is question.ErrInsufficientQuestions, not a short list.
func (s *Store) FetchRandomQuestions(ctx context.Context, mode engine.Mode, count int) ([]engine.Question, error) {
	var rows []Question
	err := s.db.WithContext(ctx).
		Where("mode = ?", string(mode)).
		Order("RANDOM()").
		Limit(count).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	if len(rows) < count {
		return nil, question.ErrInsufficientQuestions
	}

	out := make([]engine.Question, 0, len(rows))
	for _, row := range rows {
		out = append(out, toEngineQuestion(row))
	}
	return out, nil
}

func toEngineQuestion(row Question) engine.Question {
	q := engine.Question{
		ID:       row.ID,
		Text:     row.Text,
		Type:     engine.QuestionType(row.Type),
		Options:  row.Options,
		ImageURL: row.ImageURL,
	}
	// Fill-blank questions accept any of the stored equivalents; every other
	// type has one canonical answer.
	if q.Type == engine.QuestionFillBlank {
		q.Answer = engine.AnyOf(row.CorrectAnswers...)
	} else if len(row.CorrectAnswers) > 0 {
		q.Answer = engine.Exact(row.CorrectAnswers[0])
	}
	return q
}

// ResolveDisplayName looks up a registered user's name. Guests are not in
// the users table and resolve to an empty name; callers fall back to the
// name supplied at join.
func (s *Store) ResolveDisplayName(ctx context.Context, identity string) (string, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "id = ?", identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve display name: %w", err)
	}
	return u.Username, nil
}

// PersistGameResult writes the final standings in one transaction. Re-runs
// for the same code are replaced, not duplicated, so a retried finalize
// stays idempotent.
func (s *Store) PersistGameResult(ctx context.Context, code, hostID string, standings []engine.Standing) error {
	if len(standings) == 0 {
		return nil
	}
	rows := make([]GameResult, 0, len(standings))
	now := time.Now()
	for _, st := range standings {
		rows = append(rows, GameResult{
			Code:          code,
			HostID:        hostID,
			ParticipantID: st.ParticipantID,
			DisplayName:   st.DisplayName,
			Score:         st.Score,
			Rank:          st.Rank,
			PlayedAt:      now,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).Delete(&GameResult{}).Error; err != nil {
			return fmt.Errorf("clear prior results: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
		return nil
	})
}
