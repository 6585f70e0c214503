package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dilemma-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func gameApp(svc *GameService, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Get("/game/:id", svc.GetGameByID)
	app.Get("/profile/games", svc.GetMyGames)
	app.Get("/leaderboard", svc.GetLeaderboard)
	return app
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func seedScoredUser(t *testing.T, db *gorm.DB, name string, score, played int64) *models.User {
	t.Helper()
	user := &models.User{
		ID:             uuid.NewString(),
		SecondMeUserID: "sm-" + uuid.NewString(),
		Name:           name,
		TotalScore:     score,
		GamesPlayed:    played,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestGetGameByID(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", true)
	bob := seedUser(t, db, "Bob", true)
	game := seedGame(t, db, alice, bob, 3)
	require.NoError(t, db.Create(&[]models.Round{
		{ID: "r2", GameID: game.ID, RoundNumber: 2, Agent1Choice: "defect", Agent2Choice: "cooperate"},
		{ID: "r1", GameID: game.ID, RoundNumber: 1, Agent1Choice: "cooperate", Agent2Choice: "cooperate"},
	}).Error)

	svc := NewGameService(db)
	app := gameApp(svc, alice.ID)

	resp, body := getJSON(t, app, "/game/"+game.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	g := body["game"].(map[string]any)
	assert.Equal(t, game.ID, g["id"])
	rounds := g["rounds"].([]any)
	require.Len(t, rounds, 2)
	// Rounds come back in play order regardless of insert order.
	assert.Equal(t, float64(1), rounds[0].(map[string]any)["round_number"])
	assert.Equal(t, float64(2), rounds[1].(map[string]any)["round_number"])

	resp, _ = getJSON(t, app, "/game/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetMyGamesListsFinishedOnly(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", true)
	bob := seedUser(t, db, "Bob", true)
	carol := seedUser(t, db, "Carol", true)

	require.NoError(t, db.Create(&models.Game{
		ID: "g-finished", Agent1ID: alice.ID, Agent2ID: bob.ID,
		TotalRounds: 3, CurrentRound: 3, Status: models.GameStatusFinished,
	}).Error)
	require.NoError(t, db.Create(&models.Game{
		ID: "g-live", Agent1ID: alice.ID, Agent2ID: bob.ID,
		TotalRounds: 3, Status: models.GameStatusPlaying,
	}).Error)
	require.NoError(t, db.Create(&models.Game{
		ID: "g-other", Agent1ID: bob.ID, Agent2ID: carol.ID,
		TotalRounds: 3, CurrentRound: 3, Status: models.GameStatusFinished,
	}).Error)

	svc := NewGameService(db)
	app := gameApp(svc, alice.ID)

	resp, body := getJSON(t, app, "/profile/games")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	games := body["games"].([]any)
	require.Len(t, games, 1)
	assert.Equal(t, "g-finished", games[0].(map[string]any)["id"])
}

func TestRefreshLeaderboardRanksByScore(t *testing.T) {
	db := openTestDB(t)
	seedScoredUser(t, db, "Low", 50, 4)
	seedScoredUser(t, db, "High", 300, 10)
	seedScoredUser(t, db, "Mid", 120, 6)
	seedScoredUser(t, db, "Idle", 0, 0) // never played, never ranked

	svc := NewGameService(db)
	require.NoError(t, svc.RefreshLeaderboard())

	var entries []models.LeaderboardEntry
	require.NoError(t, db.Order("rank ASC").Find(&entries).Error)
	require.Len(t, entries, 3)
	assert.Equal(t, "High", entries[0].Name)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Mid", entries[1].Name)
	assert.Equal(t, "Low", entries[2].Name)

	// A second refresh replaces the snapshot instead of appending.
	require.NoError(t, svc.RefreshLeaderboard())
	var count int64
	require.NoError(t, db.Model(&models.LeaderboardEntry{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestGetLeaderboardPrefersSnapshot(t *testing.T) {
	db := openTestDB(t)
	seedScoredUser(t, db, "Live", 999, 2)
	require.NoError(t, db.Create(&models.LeaderboardEntry{
		ID: uuid.NewString(), Rank: 1, UserID: "u-snap", Name: "Snapshot", TotalScore: 10, GamesPlayed: 1,
	}).Error)

	svc := NewGameService(db)
	app := gameApp(svc, "whoever")

	resp, body := getJSON(t, app, "/leaderboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := body["leaderboard"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "Snapshot", entries[0].(map[string]any)["name"])
}

func TestGetLeaderboardLiveFallback(t *testing.T) {
	db := openTestDB(t)
	seedScoredUser(t, db, "Veteran", 200, 8)
	seedScoredUser(t, db, "Rookie", 40, 1)

	svc := NewGameService(db)
	app := gameApp(svc, "whoever")

	resp, body := getJSON(t, app, "/leaderboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := body["leaderboard"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "Veteran", entries[0].(map[string]any)["name"])
	assert.Equal(t, float64(1), entries[0].(map[string]any)["rank"])
}
