package services

import (
	"errors"
	"log"
	"math/rand"

	"dilemma-arena/dilemma"
	"dilemma-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bound the opponent scan: only one is needed, so there is no point pulling
// the whole eligible population.
const matchCandidateLimit = 10

// One retry after a lost creation race; the re-query usually finds the game
// the winner put us into.
const matchAttempts = 2

const (
	MatchStatusMatched        = "matched"
	MatchStatusAlreadyPlaying = "already_playing"
	MatchStatusWaiting        = "waiting"
)

// MatchmakingService finds or creates a playing game for a requesting user,
// relying on the ActiveSeat uniqueness constraint to keep any user out of
// two simultaneous games.
type MatchmakingService struct {
	DB *gorm.DB
}

func NewMatchmakingService(db *gorm.DB) *MatchmakingService {
	return &MatchmakingService{DB: db}
}

// MatchResult is the outcome of one matchmaking request.
type MatchResult struct {
	Status string       `json:"status"`
	Game   *models.Game `json:"game,omitempty"`
}

// FindOrCreate implements the coordinator contract: idempotent re-entry for
// users already in a game, a waiting outcome when nobody is eligible, and a
// fresh game otherwise.
func (s *MatchmakingService) FindOrCreate(userID string) (*MatchResult, error) {
	var q models.Questionnaire
	if err := s.DB.First(&q, "user_id = ?", userID).Error; err != nil || !q.Completed {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, ErrProfileIncomplete
	}

	for attempt := 0; attempt < matchAttempts; attempt++ {
		if game, err := s.activeGameFor(userID); err != nil {
			return nil, err
		} else if game != nil {
			return &MatchResult{Status: MatchStatusAlreadyPlaying, Game: game}, nil
		}

		candidates, err := s.eligibleOpponents(userID)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return &MatchResult{Status: MatchStatusWaiting}, nil
		}

		opponent := candidates[rand.Intn(len(candidates))]
		game, err := s.createGame(userID, opponent.ID)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Someone matched us (or the chosen opponent) first. Loop and
			// re-query instead of surfacing a hard error.
			log.Printf("[Matchmaking] seat race lost for user %s, re-querying", userID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return &MatchResult{Status: MatchStatusMatched, Game: game}, nil
	}

	return &MatchResult{Status: MatchStatusWaiting}, nil
}

// activeGameFor returns the user's playing game with both participants
// loaded, or nil.
func (s *MatchmakingService) activeGameFor(userID string) (*models.Game, error) {
	var game models.Game
	err := s.DB.
		Preload("Agent1").Preload("Agent2").
		Where("status = ? AND (agent1_id = ? OR agent2_id = ?)", models.GameStatusPlaying, userID, userID).
		First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// eligibleOpponents samples users with a completed questionnaire who are not
// the requester and hold no active seat.
func (s *MatchmakingService) eligibleOpponents(userID string) ([]models.User, error) {
	var candidates []models.User
	err := s.DB.
		Joins("JOIN questionnaires ON questionnaires.user_id = users.id AND questionnaires.completed").
		Where("users.id <> ?", userID).
		Where("users.id NOT IN (SELECT user_id FROM active_seats)").
		Limit(matchCandidateLimit).
		Find(&candidates).Error
	return candidates, err
}

// createGame materializes the game plus both seats in one transaction; a
// duplicate-key failure on either seat means another request won the race.
func (s *MatchmakingService) createGame(userID, opponentID string) (*models.Game, error) {
	game := models.Game{
		ID:          uuid.NewString(),
		Agent1ID:    userID,
		Agent2ID:    opponentID,
		TotalRounds: dilemma.RandomTotalRounds(),
		Status:      models.GameStatusPlaying,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&game).Error; err != nil {
			return err
		}
		seats := []models.ActiveSeat{
			{UserID: userID, GameID: game.ID},
			{UserID: opponentID, GameID: game.ID},
		}
		return tx.Create(&seats).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.Preload("Agent1").Preload("Agent2").First(&game, "id = ?", game.ID).Error; err != nil {
		return nil, err
	}
	log.Printf("[Matchmaking] game %s created: %s vs %s over %d rounds", game.ID, userID, opponentID, game.TotalRounds)
	return &game, nil
}

// HandleMatch is the POST /match endpoint.
func (s *MatchmakingService) HandleMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	result, err := s.FindOrCreate(userID)
	if errors.Is(err, ErrProfileIncomplete) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "complete the personality questionnaire first"})
	}
	if err != nil {
		log.Printf("[Matchmaking] DB error for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "matchmaking failed"})
	}
	return c.JSON(result)
}
