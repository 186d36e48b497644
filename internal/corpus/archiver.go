package corpus

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/nntndfrk/alias-game/internal/logging"
)

// GameArchiveRecord is the gorm model backing the optional "game_archives"
// table: a write-only snapshot of a finished game, written at game end and
// never read back by the core engine.
type GameArchiveRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RoomCode    string `gorm:"column:room_code;index"`
	WinnerTeam  string `gorm:"column:winner_team"`
	FinalScores string `gorm:"column:final_scores;type:text"`
	StartedAt   time.Time
	EndedAt     time.Time
	CreatedAt   time.Time
}

func (GameArchiveRecord) TableName() string { return "game_archives" }

// GameArchiver persists a finished game's summary. Writes are
// fire-and-forget: a failure is logged, never surfaced to the room, since
// the archive is an optional side-channel and must never block end-of-game
// broadcast on a database hiccup.
type GameArchiver struct {
	db *gorm.DB
}

// NewGameArchiver wraps db.
func NewGameArchiver(db *gorm.DB) *GameArchiver {
	return &GameArchiver{db: db}
}

// Archive writes the finished game's summary in a detached goroutine so the
// caller (end-of-game broadcast) never waits on it.
func (a *GameArchiver) Archive(roomCode, winnerTeam string, finalScores map[string]int, startedAt, endedAt time.Time) {
	if a == nil || a.db == nil {
		return
	}
	scores, err := json.Marshal(finalScores)
	if err != nil {
		logging.Warn(context.Background(), "failed to marshal final scores for archive")
		return
	}

	rec := GameArchiveRecord{
		RoomCode:    roomCode,
		WinnerTeam:  winnerTeam,
		FinalScores: string(scores),
		StartedAt:   startedAt,
		EndedAt:     endedAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.db.WithContext(ctx).Create(&rec).Error; err != nil {
			logging.Warn(context.Background(), "game archive write failed")
		}
	}()
}
