package handlers

import (
	"dilemma-arena/middleware"
	"dilemma-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, sessions *middleware.SessionAuth,
	matchmaking *services.MatchmakingService, rounds *services.RoundService, games *services.GameService) {

	// Public read, the leaderboard is the landing page.
	app.Get("/leaderboard", games.GetLeaderboard)

	secured := app.Group("/", sessions.Middleware())
	secured.Post("/game/match", matchmaking.HandleMatch)
	secured.Post("/game/play", rounds.HandlePlay)
	secured.Get("/game/:id", games.GetGameByID)
	secured.Get("/profile/games", games.GetMyGames)
}
