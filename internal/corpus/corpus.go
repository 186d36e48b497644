// Package corpus provides the persistent word corpus the game engine draws
// from, along with the user and game-archive tables it shares a database
// with. query(language, difficulty, exclude_set, count) -> words is the
// interface the engine is written against; production and in-memory test
// implementations both satisfy it.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/metrics"
)

// Difficulty mirrors the GameSettings.difficulty enum, minus "mixed" which
// is a query-time instruction rather than a word property.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Word is one entry drawn from the corpus.
type Word struct {
	Value      string
	Difficulty Difficulty
	Category   string
}

// Store is the interface the game engine draws words from. Implementations
// must sample uniformly without replacement from the candidates matching
// language and difficulty (when difficulty is non-empty) that are not in
// exclude.
type Store interface {
	Query(ctx context.Context, language string, difficulty Difficulty, exclude map[string]struct{}, count int) ([]Word, error)
}

// WordRecord is the gorm model backing the "words" table, indexed on
// (language, difficulty) per the persistence layout.
type WordRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Value      string `gorm:"column:value;not null;index:idx_words_lang_diff,priority:3"`
	Language   string `gorm:"column:language;not null;index:idx_words_lang_diff,priority:1"`
	Difficulty string `gorm:"column:difficulty;not null;index:idx_words_lang_diff,priority:2"`
	Category   string `gorm:"column:category"`
}

func (WordRecord) TableName() string { return "words" }

// gormDB is the subset of *gorm.DB methods GormStore needs, so tests can
// supply a fake without wiring a real database/sql driver.
type gormDB interface {
	WithContext(ctx context.Context) gormDB
	Where(query any, args ...any) gormDB
	Not(query any, args ...any) gormDB
	Find(dest any) error
}

// GormStore is the production Store backed by Postgres via gorm. It wraps
// every query in a circuit breaker since the database is an external
// dependency the rest of the server must degrade gracefully without.
type GormStore struct {
	db      gormDB
	breaker breaker
}

type breaker interface {
	Execute(ctx context.Context, fn func() (any, error)) (any, error)
}

// NewGormStore wraps db with the given breaker.
func NewGormStore(db gormDB, b breaker) *GormStore {
	return &GormStore{db: db, breaker: b}
}

// Query implements Store against the words table.
func (s *GormStore) Query(ctx context.Context, language string, difficulty Difficulty, exclude map[string]struct{}, count int) ([]Word, error) {
	start := time.Now()
	result, err := s.breaker.Execute(ctx, func() (any, error) {
		q := s.db.WithContext(ctx).Where("language = ?", language)
		if difficulty != "" {
			q = q.Where("difficulty = ?", string(difficulty))
		}
		excludeValues := make([]string, 0, len(exclude))
		for w := range exclude {
			excludeValues = append(excludeValues, w)
		}
		if len(excludeValues) > 0 {
			q = q.Not("value IN ?", excludeValues)
		}

		var records []WordRecord
		if err := q.Find(&records); err != nil {
			return nil, fmt.Errorf("query words: %w", err)
		}
		return records, nil
	})

	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.CorpusQueryDuration.WithLabelValues("error").Observe(elapsed)
		return nil, apierr.NewTransient("word corpus unavailable", err)
	}
	metrics.CorpusQueryDuration.WithLabelValues("ok").Observe(elapsed)

	records := result.([]WordRecord)
	return sampleWords(records, count)
}

func sampleWords(records []WordRecord, count int) ([]Word, error) {
	if len(records) < count {
		return nil, apierr.NewBadRequest(fmt.Sprintf("word corpus has %d matching words, need %d", len(records), count))
	}

	shuffled := make([]WordRecord, len(records))
	copy(shuffled, records)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	words := make([]Word, count)
	for i := 0; i < count; i++ {
		words[i] = Word{
			Value:      shuffled[i].Value,
			Difficulty: Difficulty(shuffled[i].Difficulty),
			Category:   shuffled[i].Category,
		}
	}
	return words, nil
}

// MemoryStore is an in-memory Store for tests: exercises the same sampling,
// difficulty and exclusion semantics as GormStore without a database. Word
// carries no language, so the language argument is ignored.
type MemoryStore struct {
	Words []Word
}

// NewMemoryStore builds a MemoryStore seeded with words.
func NewMemoryStore(words []Word) *MemoryStore {
	return &MemoryStore{Words: words}
}

// Query implements Store by filtering the in-memory word list.
func (s *MemoryStore) Query(_ context.Context, _ string, difficulty Difficulty, exclude map[string]struct{}, count int) ([]Word, error) {
	candidates := make([]Word, 0, len(s.Words))
	for _, w := range s.Words {
		if difficulty != "" && w.Difficulty != difficulty {
			continue
		}
		if _, excluded := exclude[w.Value]; excluded {
			continue
		}
		candidates = append(candidates, w)
	}
	if len(candidates) < count {
		return nil, apierr.NewBadRequest(fmt.Sprintf("word corpus has %d matching words, need %d", len(candidates), count))
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	return candidates[:count], nil
}

// ErrUserNotFound is returned by UserStore.FindByExternalID on a miss.
var ErrUserNotFound = errors.New("user not found")
