// Package game implements the turn/round state machine: team assembly,
// round sequencing, word draw against the corpus, scoring, and end-of-game
// detection. It owns no I/O of its own beyond the corpus.Store it is handed.
package game

import (
	"time"

	"github.com/nntndfrk/alias-game/internal/corpus"
)

// TeamID identifies one of the two fixed teams in a game.
type TeamID string

const (
	TeamA TeamID = "team_a"
	TeamB TeamID = "team_b"
)

const (
	MinTeamSize       = 2
	MaxTeamSize       = 5
	MaxTeamSizeSkew   = 2
	DefaultRoundSecs  = 60
	DefaultWordsRound = 20
	DefaultSkipAfter  = 3
	DefaultWinScore   = 50
	CorpusLanguage    = "uk"
)

// Team is one of the two fixed teams. Players is ordered and doubles as the
// explainer rotation: the next explainer is whoever follows the previous
// round's explainer in this slice, wrapping around.
type Team struct {
	ID      TeamID
	Name    string
	Color   string
	Players []string
	Score   int
	IsReady bool
}

// WordResult is the outcome an explainer records for one drawn word.
type WordResult string

const (
	ResultPending WordResult = ""
	ResultCorrect WordResult = "correct"
	ResultSkipped WordResult = "skipped"
	ResultPenalty WordResult = "penalty"
)

// GameWord is one word drawn into a round.
type GameWord struct {
	Word       string
	Difficulty corpus.Difficulty
	Category   string
	Result     WordResult
	TimeSpent  int
}

// Round is one team's turn.
type Round struct {
	RoundNumber  int
	TeamID       TeamID
	ExplainerID  string
	Words        []GameWord
	TimerSeconds int
	TimeRemaining int
	ScoreGained  int
	StartedAt    time.Time
	EndedAt      *time.Time
}

// Difficulty mirrors corpus.Difficulty plus the query-time "mixed" instruction.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyMixed  Difficulty = "mixed"
)

// Settings is GameSettings: the tunables fixed at game start and retained
// across a Reset.
type Settings struct {
	RoundDurationSeconds int
	WordsPerRound        int
	SkipPenaltyAfter     int
	WinScore             int
	Difficulty           Difficulty
}

// DefaultSettings returns the spec's documented defaults.
func DefaultSettings() Settings {
	return Settings{
		RoundDurationSeconds: DefaultRoundSecs,
		WordsPerRound:        DefaultWordsRound,
		SkipPenaltyAfter:     DefaultSkipAfter,
		WinScore:             DefaultWinScore,
		Difficulty:           DifficultyMixed,
	}
}

// State is one room's GameState: the engine's entire authoritative record
// of an in-progress or finished game.
type State struct {
	Teams            [2]*Team
	CurrentRound     *Round
	RoundHistory     []Round
	CurrentTeamIndex int
	CurrentWordIndex int
	UsedWords        map[string]struct{}
	Settings         Settings
	WinnerTeamID     *TeamID
	StartedAt        *time.Time
	EndedAt          *time.Time
	Paused           bool
}

// NewState builds an unstarted GameState with the two fixed teams and the
// given settings (or defaults, if the zero value is passed).
func NewState(settings Settings) *State {
	if settings.RoundDurationSeconds == 0 {
		settings = DefaultSettings()
	}
	return &State{
		Teams: [2]*Team{
			{ID: TeamA, Name: "Team A", Color: "red"},
			{ID: TeamB, Name: "Team B", Color: "blue"},
		},
		UsedWords: make(map[string]struct{}),
		Settings:  settings,
	}
}

// teamByID returns the team with the given id, or nil.
func (s *State) teamByID(id TeamID) *Team {
	for _, t := range s.Teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TeamForPlayer returns the team the given user currently belongs to, or nil.
func (s *State) TeamForPlayer(userID string) *Team {
	for _, t := range s.Teams {
		for _, p := range t.Players {
			if p == userID {
				return t
			}
		}
	}
	return nil
}

// Statistics is the read-only end-of-game (or in-progress) aggregate.
type Statistics struct {
	TotalRounds   int
	TotalWords    int
	TotalCorrect  int
	TotalSkipped  int
	TeamScores    map[TeamID]int
	WinnerTeamID  *TeamID
	DurationSecs  float64
}
