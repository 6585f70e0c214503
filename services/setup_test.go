package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"dilemma-arena/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "arena.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Questionnaire{},
		&models.Game{},
		&models.Round{},
		&models.ActiveSeat{},
		&models.LeaderboardEntry{},
	))
	return db
}

// seedUser creates a user, optionally with a completed questionnaire.
func seedUser(t *testing.T, db *gorm.DB, name string, completed bool) *models.User {
	t.Helper()

	user := &models.User{
		ID:             uuid.NewString(),
		SecondMeUserID: "sm-" + uuid.NewString(),
		Name:           name,
	}
	require.NoError(t, db.Create(user).Error)

	if completed {
		q := &models.Questionnaire{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Completed: true,
		}
		q.SetAnswers([]models.Answer{{QuestionIndex: 0, Question: "q", Answer: "a", Source: models.AnswerSourceAgent}})
		require.NoError(t, db.Create(q).Error)
	}
	return user
}

// seedGame creates a playing game plus both seats, the way matchmaking does.
func seedGame(t *testing.T, db *gorm.DB, agent1, agent2 *models.User, totalRounds int) *models.Game {
	t.Helper()

	game := &models.Game{
		ID:          uuid.NewString(),
		Agent1ID:    agent1.ID,
		Agent2ID:    agent2.ID,
		TotalRounds: totalRounds,
		Status:      models.GameStatusPlaying,
	}
	require.NoError(t, db.Create(game).Error)
	require.NoError(t, db.Create(&[]models.ActiveSeat{
		{UserID: agent1.ID, GameID: game.ID},
		{UserID: agent2.ID, GameID: game.ID},
	}).Error)
	return game
}

// staticCredentials maps each user id onto a predictable token.
type staticCredentials struct{}

func (staticCredentials) AccessTokenFor(_ context.Context, userID string) (string, error) {
	return "token-" + userID, nil
}

// failingCredentials always refuses.
type failingCredentials struct{}

func (failingCredentials) AccessTokenFor(context.Context, string) (string, error) {
	return "", ErrNoCredential
}

// scriptedAgents replays a fixed choice sequence per token and records every
// prompt it was handed.
type scriptedAgents struct {
	mu      sync.Mutex
	choices map[string][]string // token -> choice per call, in order
	calls   map[string]int
	prompts map[string][]string
	err     error
}

func newScriptedAgents() *scriptedAgents {
	return &scriptedAgents{
		choices: make(map[string][]string),
		calls:   make(map[string]int),
		prompts: make(map[string][]string),
	}
}

func (a *scriptedAgents) script(userID string, choices ...string) {
	a.choices["token-"+userID] = choices
}

func (a *scriptedAgents) promptsFor(userID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompts["token-"+userID]
}

func (a *scriptedAgents) Act(_ context.Context, token, message, _, _ string) (map[string]any, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return nil, "", a.err
	}

	a.prompts[token] = append(a.prompts[token], message)
	seq := a.choices[token]
	call := a.calls[token]
	a.calls[token]++
	if call >= len(seq) {
		return nil, "", fmt.Errorf("unexpected call %d for %s", call, token)
	}
	return map[string]any{
		"choice": seq[call],
		"reason": fmt.Sprintf("call %d", call),
	}, "", nil
}
