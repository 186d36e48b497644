package corpus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nntndfrk/alias-game/internal/apierr"
)

// fakeGormDB is a minimal in-memory stand-in for the gormDB interface, just
// enough to exercise GormStore's query-building and exclusion logic without
// a real database/sql driver.
type fakeGormDB struct {
	records []WordRecord
}

func (f fakeGormDB) WithContext(context.Context) gormDB { return f }

func (f fakeGormDB) Where(query any, args ...any) gormDB {
	lang, _ := args[0].(string)
	filtered := make([]WordRecord, 0, len(f.records))
	for _, r := range f.records {
		switch query {
		case "language = ?":
			if r.Language == lang {
				filtered = append(filtered, r)
			}
		case "difficulty = ?":
			if r.Difficulty == lang {
				filtered = append(filtered, r)
			}
		}
	}
	f.records = filtered
	return f
}

func (f fakeGormDB) Not(query any, args ...any) gormDB {
	excludeList, _ := args[0].([]string)
	exclude := make(map[string]bool, len(excludeList))
	for _, v := range excludeList {
		exclude[v] = true
	}
	filtered := make([]WordRecord, 0, len(f.records))
	for _, r := range f.records {
		if !exclude[r.Value] {
			filtered = append(filtered, r)
		}
	}
	f.records = filtered
	return f
}

func (f fakeGormDB) Find(dest any) error {
	out := dest.(*[]WordRecord)
	*out = f.records
	return nil
}

// passthroughBreaker runs fn directly, for tests that don't care about
// circuit-breaker behavior.
type passthroughBreaker struct{}

func (passthroughBreaker) Execute(_ context.Context, fn func() (any, error)) (any, error) {
	return fn()
}

type failingBreaker struct{ err error }

func (b failingBreaker) Execute(context.Context, func() (any, error)) (any, error) {
	return nil, b.err
}

func newFakeDB() fakeGormDB {
	return fakeGormDB{records: []WordRecord{
		{Value: "сонце", Language: "uk", Difficulty: "easy"},
		{Value: "гора", Language: "uk", Difficulty: "easy"},
		{Value: "вогонь", Language: "uk", Difficulty: "hard"},
		{Value: "тінь", Language: "en", Difficulty: "easy"},
	}}
}

func TestGormStoreQueryFiltersByLanguageAndDifficulty(t *testing.T) {
	store := NewGormStore(newFakeDB(), passthroughBreaker{})
	words, err := store.Query(context.Background(), "uk", Easy, nil, 2)
	require.NoError(t, err)
	assert.Len(t, words, 2)
	for _, w := range words {
		assert.Equal(t, Easy, w.Difficulty)
	}
}

func TestGormStoreQueryExcludesUsedWords(t *testing.T) {
	store := NewGormStore(newFakeDB(), passthroughBreaker{})
	exclude := map[string]struct{}{"сонце": {}}
	words, err := store.Query(context.Background(), "uk", Easy, exclude, 1)
	require.NoError(t, err)
	require.Len(t, words, 1)
	assert.Equal(t, "гора", words[0].Value)
}

func TestGormStoreQueryErrorsWhenPoolTooSmall(t *testing.T) {
	store := NewGormStore(newFakeDB(), passthroughBreaker{})
	_, err := store.Query(context.Background(), "uk", Easy, nil, 10)
	assert.Error(t, err)
}

func TestGormStoreQueryPropagatesBreakerFailureAsTransient(t *testing.T) {
	store := NewGormStore(newFakeDB(), failingBreaker{err: errors.New("db down")})
	_, err := store.Query(context.Background(), "uk", "", nil, 1)
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.Transient, apiErr.Kind)
}

func TestMemoryStoreFiltersAndExcludes(t *testing.T) {
	store := NewMemoryStore([]Word{
		{Value: "a", Difficulty: Easy},
		{Value: "b", Difficulty: Easy},
		{Value: "c", Difficulty: Hard},
	})

	words, err := store.Query(context.Background(), "uk", Easy, map[string]struct{}{"a": {}}, 1)
	require.NoError(t, err)
	require.Len(t, words, 1)
	assert.Equal(t, "b", words[0].Value)
}

func TestMemoryStoreQueryErrorsWhenPoolTooSmall(t *testing.T) {
	store := NewMemoryStore([]Word{{Value: "a", Difficulty: Easy}})
	_, err := store.Query(context.Background(), "uk", Easy, nil, 2)
	assert.Error(t, err)
}

func TestMemoryStoreMixedDifficultyIgnoresFilter(t *testing.T) {
	store := NewMemoryStore([]Word{
		{Value: "a", Difficulty: Easy},
		{Value: "b", Difficulty: Hard},
	})
	words, err := store.Query(context.Background(), "uk", "", nil, 2)
	require.NoError(t, err)
	assert.Len(t, words, 2)
}
