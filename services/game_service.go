package services

import (
	"errors"
	"log"

	"dilemma-arena/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// GameService serves the read-only projections: game snapshots, a user's
// finished games, and the leaderboard.
type GameService struct {
	DB *gorm.DB
}

func NewGameService(db *gorm.DB) *GameService {
	return &GameService{DB: db}
}

// GetGameByID returns one game with both participants and all rounds in
// order.
func (s *GameService) GetGameByID(c *fiber.Ctx) error {
	id := c.Params("id")

	var game models.Game
	err := s.DB.
		Preload("Agent1.Questionnaire").
		Preload("Agent2.Questionnaire").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("round_number ASC") }).
		First(&game, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "game not found"})
	}
	if err != nil {
		log.Printf("[Game] DB error fetching game %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	return c.JSON(fiber.Map{"game": game})
}

// GetMyGames lists the current user's finished games, most recent first.
func (s *GameService) GetMyGames(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var games []models.Game
	err := s.DB.
		Preload("Agent1").Preload("Agent2").
		Where("status = ? AND (agent1_id = ? OR agent2_id = ?)", models.GameStatusFinished, userID, userID).
		Order("created_at DESC").
		Limit(20).
		Find(&games).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	return c.JSON(fiber.Map{"games": games})
}

// GetLeaderboard serves the top players. It prefers the scheduler-built
// snapshot and falls back to a live query before the first refresh has run.
func (s *GameService) GetLeaderboard(c *fiber.Ctx) error {
	var entries []models.LeaderboardEntry
	if err := s.DB.Order("rank ASC").Limit(10).Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	if len(entries) > 0 {
		return c.JSON(fiber.Map{"leaderboard": entries})
	}

	var users []models.User
	err := s.DB.
		Where("games_played > 0").
		Order("total_score DESC").
		Limit(10).
		Find(&users).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	live := make([]models.LeaderboardEntry, len(users))
	for i, u := range users {
		live[i] = models.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      u.ID,
			Name:        u.Name,
			AvatarURL:   u.Public().AvatarURL,
			TotalScore:  u.TotalScore,
			GamesPlayed: u.GamesPlayed,
		}
	}
	return c.JSON(fiber.Map{"leaderboard": live})
}
