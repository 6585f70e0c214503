package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"dilemma-arena/dilemma"
	"dilemma-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DecisionClient is the one agent call the orchestrator needs. Satisfied by
// *secondme.Client.
type DecisionClient interface {
	Act(ctx context.Context, accessToken, message, actionControl, sessionID string) (map[string]any, string, error)
}

// CredentialSource hands out live agent access tokens. Satisfied by
// *AuthService.
type CredentialSource interface {
	AccessTokenFor(ctx context.Context, userID string) (string, error)
}

// RoundService drives one round at a time: both agents decide concurrently,
// the payoff is applied, and the game advances exactly once under an
// optimistic guard on the round counter.
type RoundService struct {
	DB          *gorm.DB
	Agents      DecisionClient
	Credentials CredentialSource
}

func NewRoundService(db *gorm.DB, agents DecisionClient, credentials CredentialSource) *RoundService {
	return &RoundService{DB: db, Agents: agents, Credentials: credentials}
}

// GameSnapshot is the post-round view of the game returned to callers.
type GameSnapshot struct {
	CurrentRound int  `json:"current_round"`
	TotalRounds  int  `json:"total_rounds"`
	Agent1Score  int  `json:"agent1_score"`
	Agent2Score  int  `json:"agent2_score"`
	IsGameOver   bool `json:"is_game_over"`
}

// RoundOutcome bundles the created round with the advanced game state.
type RoundOutcome struct {
	Round  models.Round      `json:"round"`
	Game   GameSnapshot      `json:"game"`
	Agent1 models.PublicUser `json:"agent1"`
	Agent2 models.PublicUser `json:"agent2"`
}

type decision struct {
	choice dilemma.Choice
	reason string
}

// PlayRound advances the identified game by one round on behalf of one of
// its participants. Transport-level agent failures abort the round with no
// state change; a concurrent advance of the same game fails with
// ErrRoundConflict and performs no write.
func (s *RoundService) PlayRound(ctx context.Context, gameID, userID string) (*RoundOutcome, error) {
	var game models.Game
	err := s.DB.WithContext(ctx).
		Preload("Agent1").Preload("Agent2").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("round_number ASC") }).
		First(&game, "id = ?", gameID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}

	if game.Status != models.GameStatusPlaying {
		return nil, ErrGameFinished
	}
	if game.Agent1ID != userID && game.Agent2ID != userID {
		return nil, ErrNotParticipant
	}

	nextRound := game.CurrentRound + 1
	context1, context2, err := s.buildContexts(ctx, &game, nextRound)
	if err != nil {
		return nil, err
	}

	d1, d2, err := s.decideBoth(ctx, &game, context1, context2)
	if err != nil {
		return nil, err
	}

	payoff := dilemma.Score(d1.choice, d2.choice)
	round := models.Round{
		ID:           uuid.NewString(),
		GameID:       game.ID,
		RoundNumber:  nextRound,
		Agent1Choice: string(d1.choice),
		Agent2Choice: string(d2.choice),
		Agent1Reason: d1.reason,
		Agent2Reason: d2.reason,
		Agent1Points: payoff.Agent1Points,
		Agent2Points: payoff.Agent2Points,
	}

	if err := s.commitRound(ctx, &game, &round); err != nil {
		return nil, err
	}

	isOver := nextRound == game.TotalRounds
	log.Printf("[Round] game %s round %d/%d: %s vs %s (%d/%d)",
		game.ID, nextRound, game.TotalRounds, d1.choice, d2.choice, payoff.Agent1Points, payoff.Agent2Points)

	return &RoundOutcome{
		Round: round,
		Game: GameSnapshot{
			CurrentRound: nextRound,
			TotalRounds:  game.TotalRounds,
			Agent1Score:  game.Agent1Score + payoff.Agent1Points,
			Agent2Score:  game.Agent2Score + payoff.Agent2Points,
			IsGameOver:   isOver,
		},
		Agent1: game.Agent1.Public(),
		Agent2: game.Agent2.Public(),
	}, nil
}

// buildContexts renders the decision prompt for each slot. Histories are
// flipped per perspective: each agent sees its own choices and points as
// "you", never the opponent's.
func (s *RoundService) buildContexts(ctx context.Context, game *models.Game, nextRound int) (string, string, error) {
	var q1, q2 models.Questionnaire
	if err := s.DB.WithContext(ctx).First(&q1, "user_id = ?", game.Agent1ID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", err
	}
	if err := s.DB.WithContext(ctx).First(&q2, "user_id = ?", game.Agent2ID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", err
	}

	history1 := make([]dilemma.HistoryEntry, 0, len(game.Rounds))
	history2 := make([]dilemma.HistoryEntry, 0, len(game.Rounds))
	for _, r := range game.Rounds {
		history1 = append(history1, dilemma.HistoryEntry{
			Round:          r.RoundNumber,
			MyChoice:       dilemma.Choice(r.Agent1Choice),
			OpponentChoice: dilemma.Choice(r.Agent2Choice),
			MyPoints:       r.Agent1Points,
			OpponentPoints: r.Agent2Points,
		})
		history2 = append(history2, dilemma.HistoryEntry{
			Round:          r.RoundNumber,
			MyChoice:       dilemma.Choice(r.Agent2Choice),
			OpponentChoice: dilemma.Choice(r.Agent1Choice),
			MyPoints:       r.Agent2Points,
			OpponentPoints: r.Agent1Points,
		})
	}

	context1 := dilemma.BuildDecisionContext(displayName(game.Agent2), nextRound, game.TotalRounds, q1.PersonalityTags(), history1)
	context2 := dilemma.BuildDecisionContext(displayName(game.Agent1), nextRound, game.TotalRounds, q2.PersonalityTags(), history2)
	return context1, context2, nil
}

func displayName(u *models.User) string {
	if u == nil || u.Name == "" {
		return "your opponent"
	}
	return u.Name
}

// decideBoth fetches both credentials, then runs the two decide calls
// concurrently and joins on both. If either call fails at the transport
// level the whole round is abandoned, including the other agent's completed
// decision.
func (s *RoundService) decideBoth(ctx context.Context, game *models.Game, context1, context2 string) (decision, decision, error) {
	token1, err := s.Credentials.AccessTokenFor(ctx, game.Agent1ID)
	if err != nil {
		return decision{}, decision{}, fmt.Errorf("agent1 credential: %w", err)
	}
	token2, err := s.Credentials.AccessTokenFor(ctx, game.Agent2ID)
	if err != nil {
		return decision{}, decision{}, fmt.Errorf("agent2 credential: %w", err)
	}

	var d1, d2 decision
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		result, _, err := s.Agents.Act(groupCtx, token1, context1, dilemma.DecisionActionControl, "")
		if err != nil {
			return fmt.Errorf("agent1 decision: %w", err)
		}
		d1 = parseDecision(result)
		return nil
	})
	group.Go(func() error {
		result, _, err := s.Agents.Act(groupCtx, token2, context2, dilemma.DecisionActionControl, "")
		if err != nil {
			return fmt.Errorf("agent2 decision: %w", err)
		}
		d2 = parseDecision(result)
		return nil
	})
	if err := group.Wait(); err != nil {
		return decision{}, decision{}, err
	}
	return d1, d2, nil
}

// parseDecision pulls choice and reason out of the agent's partially trusted
// JSON, defaulting to cooperation on anything unrecognized.
func parseDecision(result map[string]any) decision {
	choice, _ := result["choice"].(string)
	reason, _ := result["reason"].(string)
	return decision{choice: dilemma.Normalize(choice), reason: reason}
}

// commitRound writes the round and advances the game in one transaction.
// The game update is conditional on the round counter being unchanged since
// the read; zero rows affected means a concurrent call advanced the game
// first and nothing is written. Settlement of the users' lifetime totals
// rides in the same transaction, so it happens exactly once per game.
func (s *RoundService) commitRound(ctx context.Context, game *models.Game, round *models.Round) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newStatus := models.GameStatusPlaying
		if round.RoundNumber == game.TotalRounds {
			newStatus = models.GameStatusFinished
		}

		res := tx.Model(&models.Game{}).
			Where("id = ? AND current_round = ? AND status = ?", game.ID, game.CurrentRound, models.GameStatusPlaying).
			Updates(map[string]interface{}{
				"current_round": round.RoundNumber,
				"agent1_score":  gorm.Expr("agent1_score + ?", round.Agent1Points),
				"agent2_score":  gorm.Expr("agent2_score + ?", round.Agent2Points),
				"status":        newStatus,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoundConflict
		}

		if err := tx.Create(round).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRoundConflict
			}
			return err
		}

		if newStatus != models.GameStatusFinished {
			return nil
		}
		return s.settle(tx, game, round)
	})
}

// settle folds each side's final game score into their lifetime totals and
// releases both seats. Runs inside the round-advance transaction.
func (s *RoundService) settle(tx *gorm.DB, game *models.Game, final *models.Round) error {
	totals := []struct {
		userID string
		score  int
	}{
		{game.Agent1ID, game.Agent1Score + final.Agent1Points},
		{game.Agent2ID, game.Agent2Score + final.Agent2Points},
	}
	for _, t := range totals {
		err := tx.Model(&models.User{}).Where("id = ?", t.userID).Updates(map[string]interface{}{
			"total_score":  gorm.Expr("total_score + ?", t.score),
			"games_played": gorm.Expr("games_played + 1"),
		}).Error
		if err != nil {
			return err
		}
	}

	if err := tx.Where("game_id = ?", game.ID).Delete(&models.ActiveSeat{}).Error; err != nil {
		return err
	}
	log.Printf("[Round] game %s settled: %d / %d", game.ID, totals[0].score, totals[1].score)
	return nil
}

// HandlePlay is the POST /game/play endpoint.
func (s *RoundService) HandlePlay(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		GameID string `json:"gameId"`
	}
	if err := c.BodyParser(&req); err != nil || req.GameID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gameId is required"})
	}

	outcome, err := s.PlayRound(c.Context(), req.GameID, userID)
	switch {
	case err == nil:
		return c.JSON(outcome)
	case errors.Is(err, ErrGameNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "game not found"})
	case errors.Is(err, ErrGameFinished):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "game already finished"})
	case errors.Is(err, ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "you are not a participant of this game"})
	case errors.Is(err, ErrRoundConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "round already in progress, retry shortly"})
	case errors.Is(err, ErrNoCredential):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "agent credential unavailable, retry later"})
	default:
		log.Printf("[Round] play failed for game %s: %v", req.GameID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "agent decision failed, retry later"})
	}
}
