package game

import (
	"context"
	"time"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/corpus"
	"github.com/nntndfrk/alias-game/internal/metrics"
)

// Engine runs the turn/round state machine against a single room's *State at
// a time; the caller (internal/wsconn, inside room.Registry.Mutate) is
// responsible for serializing access to a room (the per-room exclusive
// section) before calling any method here.
type Engine struct {
	Corpus corpus.Store
}

// NewEngine builds an Engine drawing words from store.
func NewEngine(store corpus.Store) *Engine {
	return &Engine{Corpus: store}
}

// JoinTeam moves userID onto teamID, removing them from any other team
// first so the move is atomic from the caller's perspective.
func (e *Engine) JoinTeam(state *State, userID string, teamID TeamID) error {
	target := state.teamByID(teamID)
	if target == nil {
		return apierr.NewBadRequest("unknown team")
	}
	if len(target.Players) >= MaxTeamSize {
		return apierr.NewBadRequest("team is full")
	}

	e.LeaveTeam(state, userID)
	target.Players = append(target.Players, userID)
	target.IsReady = len(target.Players) >= MinTeamSize
	return nil
}

// LeaveTeam removes userID from whichever team they belong to, if any.
func (e *Engine) LeaveTeam(state *State, userID string) {
	for _, t := range state.Teams {
		for i, p := range t.Players {
			if p == userID {
				t.Players = append(t.Players[:i], t.Players[i+1:]...)
				t.IsReady = len(t.Players) >= MinTeamSize
				return
			}
		}
	}
}

// AutoBalance distributes userIDs round-robin across the two teams,
// skipping anyone already assigned to a team.
func (e *Engine) AutoBalance(state *State, userIDs []string) {
	i := 0
	for _, id := range userIDs {
		if state.TeamForPlayer(id) != nil {
			continue
		}
		team := state.Teams[i%2]
		team.Players = append(team.Players, id)
		team.IsReady = len(team.Players) >= MinTeamSize
		i++
	}
}

// StartGame validates team composition and transitions the game to started.
func (e *Engine) StartGame(state *State, now time.Time) error {
	if state.StartedAt != nil {
		return apierr.NewBadRequest("game already started")
	}

	nonEmpty := make([]*Team, 0, 2)
	for _, t := range state.Teams {
		if len(t.Players) == 0 {
			continue
		}
		if len(t.Players) < MinTeamSize || len(t.Players) > MaxTeamSize {
			return apierr.NewBadRequest("each team must have between 2 and 5 players")
		}
		nonEmpty = append(nonEmpty, t)
	}
	if len(nonEmpty) < 2 {
		return apierr.NewBadRequest("both teams must have at least 2 players")
	}
	diff := len(nonEmpty[0].Players) - len(nonEmpty[1].Players)
	if diff < 0 {
		diff = -diff
	}
	if diff > MaxTeamSizeSkew {
		return apierr.NewBadRequest("teams are not balanced")
	}

	start := now
	state.StartedAt = &start
	state.CurrentTeamIndex = 0
	return nil
}

// StartRound runs the round-start algorithm: pick the explainer, draw words
// from the corpus excluding used_words, and install the new current round.
func (e *Engine) StartRound(ctx context.Context, state *State, roomCode string, now time.Time) (*Round, error) {
	if state.StartedAt == nil {
		return nil, apierr.NewBadRequest("game has not started")
	}
	if state.WinnerTeamID != nil {
		return nil, apierr.NewBadRequest("game already ended")
	}
	if state.CurrentRound != nil {
		return nil, apierr.NewBadRequest("a round is already active")
	}

	team := state.Teams[state.CurrentTeamIndex]
	explainerID := nextExplainer(state, team)

	difficulty := corpus.Difficulty("")
	if state.Settings.Difficulty != DifficultyMixed {
		difficulty = corpus.Difficulty(state.Settings.Difficulty)
	}

	words, err := e.Corpus.Query(ctx, CorpusLanguage, difficulty, state.UsedWords, state.Settings.WordsPerRound)
	if err != nil {
		return nil, err
	}

	gameWords := make([]GameWord, len(words))
	for i, w := range words {
		gameWords[i] = GameWord{Word: w.Value, Difficulty: w.Difficulty, Category: w.Category}
		state.UsedWords[w.Value] = struct{}{}
	}

	round := Round{
		RoundNumber:   len(state.RoundHistory) + 1,
		TeamID:        team.ID,
		ExplainerID:   explainerID,
		Words:         gameWords,
		TimerSeconds:  state.Settings.RoundDurationSeconds,
		TimeRemaining: state.Settings.RoundDurationSeconds,
		StartedAt:     now,
	}
	state.CurrentRound = &round
	state.CurrentWordIndex = 0

	metrics.GameRoundsStarted.WithLabelValues(roomCode).Inc()
	return &round, nil
}

// nextExplainer scans round_history in reverse for this team's last round
// and returns the player immediately after the previous explainer in the
// team's player order, wrapping around. If there is no prior round for this
// team, the first player is the explainer.
func nextExplainer(state *State, team *Team) string {
	for i := len(state.RoundHistory) - 1; i >= 0; i-- {
		r := state.RoundHistory[i]
		if r.TeamID != team.ID {
			continue
		}
		for idx, p := range team.Players {
			if p == r.ExplainerID {
				return team.Players[(idx+1)%len(team.Players)]
			}
		}
		break
	}
	return team.Players[0]
}

// SubmitWordResult records the outcome for the current word, advances the
// word index, and returns the score delta it applied.
func (e *Engine) SubmitWordResult(state *State, callerID string, result WordResult) (int, error) {
	round := state.CurrentRound
	if round == nil {
		return 0, apierr.NewBadRequest("no active round")
	}
	if callerID != round.ExplainerID {
		return 0, apierr.NewForbidden("only the round's explainer may submit word results")
	}
	if state.CurrentWordIndex < 0 || state.CurrentWordIndex >= len(round.Words) {
		return 0, apierr.NewBadRequest("no current word to resolve")
	}
	word := &round.Words[state.CurrentWordIndex]
	if word.Result != ResultPending {
		return 0, apierr.NewBadRequest("word already processed")
	}

	delta := e.scoreDelta(state, round, result)

	word.Result = result
	word.TimeSpent = round.TimerSeconds - round.TimeRemaining
	state.CurrentWordIndex++
	round.ScoreGained += delta
	state.teamByID(round.TeamID).Score += delta

	metrics.GameWordsProcessed.WithLabelValues(string(result)).Inc()
	return delta, nil
}

// scoreDelta implements the skip-penalty convention documented in DESIGN.md:
// a skip only costs a point once skips already resolved earlier in this
// round reach (>=) skip_penalty_after. The skip being processed here is not
// yet marked in round.Words, so this counts only prior skips.
func (e *Engine) scoreDelta(state *State, round *Round, result WordResult) int {
	switch result {
	case ResultCorrect:
		return 1
	case ResultPenalty:
		return -1
	case ResultSkipped:
		skips := 0
		for i := 0; i < len(round.Words); i++ {
			if round.Words[i].Result == ResultSkipped {
				skips++
			}
		}
		if skips >= state.Settings.SkipPenaltyAfter {
			return -1
		}
		return 0
	default:
		return 0
	}
}

// EndRound closes out the current round, appends it to history, advances to
// the next team, and evaluates the win condition. Returns the id of the
// team whose turn is next.
func (e *Engine) EndRound(state *State, now time.Time) (TeamID, error) {
	round := state.CurrentRound
	if round == nil {
		return "", apierr.NewBadRequest("no active round")
	}

	ended := now
	round.EndedAt = &ended
	state.RoundHistory = append(state.RoundHistory, *round)
	state.CurrentRound = nil
	state.CurrentTeamIndex = (state.CurrentTeamIndex + 1) % len(state.Teams)

	for _, t := range state.Teams {
		if t.Score >= state.Settings.WinScore {
			winner := t.ID
			state.WinnerTeamID = &winner
			state.EndedAt = &ended
			break
		}
	}

	return state.Teams[state.CurrentTeamIndex].ID, nil
}

// Tick advances the current round's clock to remaining seconds. It reports
// whether the round must now be ended implicitly (remaining reached zero).
// The caller (internal/wsconn.Hub's per-round ticker goroutine) is
// responsible for calling this roughly once a second and ending the round
// when it returns true.
func (e *Engine) Tick(state *State, remaining int) bool {
	if state.CurrentRound == nil {
		return false
	}
	if remaining < 0 {
		remaining = 0
	}
	state.CurrentRound.TimeRemaining = remaining
	return remaining == 0
}

// Pause marks the game paused. The caller (internal/wsconn.Hub) owns
// cancelling the actual ticker goroutine; this only records the state.
func (e *Engine) Pause(state *State) error {
	if state.CurrentRound == nil {
		return apierr.NewBadRequest("no active round to pause")
	}
	state.Paused = true
	return nil
}

// Resume clears the paused flag. The caller re-arms a fresh ticker goroutine
// against CurrentRound.TimeRemaining.
func (e *Engine) Resume(state *State) error {
	if state.CurrentRound == nil {
		return apierr.NewBadRequest("no active round to resume")
	}
	state.Paused = false
	return nil
}

// Reset clears teams' players, history, word/team index, used words,
// winner, and timestamps, retaining only Settings.
func (e *Engine) Reset(state *State) {
	for _, t := range state.Teams {
		t.Players = nil
		t.Score = 0
		t.IsReady = false
	}
	state.CurrentRound = nil
	state.RoundHistory = nil
	state.CurrentTeamIndex = 0
	state.CurrentWordIndex = 0
	state.UsedWords = make(map[string]struct{})
	state.WinnerTeamID = nil
	state.StartedAt = nil
	state.EndedAt = nil
	state.Paused = false
}

// Statistics computes the read-only aggregate over the game so far.
func (e *Engine) Statistics(state *State) Statistics {
	stats := Statistics{TeamScores: make(map[TeamID]int)}
	for _, t := range state.Teams {
		stats.TeamScores[t.ID] = t.Score
	}
	stats.WinnerTeamID = state.WinnerTeamID

	rounds := state.RoundHistory
	if state.CurrentRound != nil {
		rounds = append(append([]Round{}, rounds...), *state.CurrentRound)
	}
	stats.TotalRounds = len(rounds)
	for _, r := range rounds {
		stats.TotalWords += len(r.Words)
		for _, w := range r.Words {
			switch w.Result {
			case ResultCorrect:
				stats.TotalCorrect++
			case ResultSkipped:
				stats.TotalSkipped++
			}
		}
	}

	if state.StartedAt != nil {
		end := time.Now()
		if state.EndedAt != nil {
			end = *state.EndedAt
		}
		stats.DurationSecs = end.Sub(*state.StartedAt).Seconds()
	}
	return stats
}
