package services

import (
	"log"
	"time"

	"dilemma-arena/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const leaderboardSize = 100

// StartLeaderboardScheduler rebuilds the leaderboard snapshot every minute
// so reads never rank the users table in the request path.
func (s *GameService) StartLeaderboardScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if err := s.RefreshLeaderboard(); err != nil {
				log.Printf("[Scheduler] leaderboard refresh failed: %v", err)
			}
		}),
	)
}

// RefreshLeaderboard replaces the snapshot with the current ranking.
func (s *GameService) RefreshLeaderboard() error {
	var users []models.User
	err := s.DB.
		Where("games_played > 0").
		Order("total_score DESC, games_played ASC").
		Limit(leaderboardSize).
		Find(&users).Error
	if err != nil {
		return err
	}

	now := time.Now()
	entries := make([]models.LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = models.LeaderboardEntry{
			ID:          uuid.NewString(),
			Rank:        i + 1,
			UserID:      u.ID,
			Name:        u.Name,
			AvatarURL:   u.Public().AvatarURL,
			TotalScore:  u.TotalScore,
			GamesPlayed: u.GamesPlayed,
			RefreshedAt: now,
		}
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.LeaderboardEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}
