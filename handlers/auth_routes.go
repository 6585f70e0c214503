package handlers

import (
	"dilemma-arena/middleware"
	"dilemma-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAuthRoutes(app *fiber.App, authService *services.AuthService, sessions *middleware.SessionAuth) {
	app.Get("/auth/login", authService.HandleLogin)
	app.Get("/auth/callback", authService.HandleCallback)

	secured := app.Group("/", sessions.Middleware())
	secured.Get("/auth/me", authService.HandleMe)
	secured.Post("/auth/logout", authService.HandleLogout)
}
