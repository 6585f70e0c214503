package models

import "time"

const (
	GameStatusPlaying  = "playing"
	GameStatusFinished = "finished"
)

// Game is a bounded sequence of rounds between two agents. The round target
// is drawn once at creation; status flips to finished exactly when
// CurrentRound reaches TotalRounds. Archival record, never deleted.
type Game struct {
	ID       string `gorm:"primaryKey" json:"id"`
	Agent1ID string `gorm:"index;not null" json:"agent1_id"`
	Agent2ID string `gorm:"index;not null" json:"agent2_id"`

	TotalRounds  int    `gorm:"not null" json:"total_rounds"`
	CurrentRound int    `gorm:"default:0" json:"current_round"`
	Agent1Score  int    `gorm:"default:0" json:"agent1_score"`
	Agent2Score  int    `gorm:"default:0" json:"agent2_score"`
	Status       string `gorm:"default:'playing';index" json:"status"`

	Agent1 *User   `json:"agent1,omitempty" gorm:"foreignKey:Agent1ID"`
	Agent2 *User   `json:"agent2,omitempty" gorm:"foreignKey:Agent2ID"`
	Rounds []Round `json:"rounds,omitempty" gorm:"foreignKey:GameID"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Round is one simultaneous exchange, write-once. The composite unique index
// on (game_id, round_number) is the hard backstop against two concurrent
// orchestration calls creating the same round.
type Round struct {
	ID          string `gorm:"primaryKey" json:"id"`
	GameID      string `gorm:"index:idx_game_round,unique;not null" json:"game_id"`
	RoundNumber int    `gorm:"index:idx_game_round,unique;not null" json:"round_number"`

	Agent1Choice string `gorm:"not null" json:"agent1_choice"`
	Agent2Choice string `gorm:"not null" json:"agent2_choice"`
	Agent1Reason string `gorm:"type:text" json:"agent1_reason"`
	Agent2Reason string `gorm:"type:text" json:"agent2_reason"`
	Agent1Points int    `json:"agent1_points"`
	Agent2Points int    `json:"agent2_points"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// ActiveSeat pins a user to their single playing game. One row per
// participant, created in the same transaction as the Game and released at
// settlement. The unique index on UserID is the persistence-layer guard
// that loses a matchmaking race loudly instead of double-booking a user.
// Rows are hard-deleted, so no soft-delete column here.
type ActiveSeat struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	GameID    string    `gorm:"index;not null" json:"game_id"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
