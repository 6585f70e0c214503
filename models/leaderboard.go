package models

import "time"

// LeaderboardEntry is a denormalized ranking row, rebuilt periodically by the
// scheduler so the leaderboard read path never sorts the users table.
type LeaderboardEntry struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Rank        int       `gorm:"index" json:"rank"`
	UserID      string    `gorm:"uniqueIndex;not null" json:"user_id"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	TotalScore  int64     `json:"total_score"`
	GamesPlayed int64     `json:"games_played"`
	RefreshedAt time.Time `json:"refreshed_at"`
}
