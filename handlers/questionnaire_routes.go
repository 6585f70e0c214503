package handlers

import (
	"dilemma-arena/middleware"
	"dilemma-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupQuestionnaireRoutes(app *fiber.App, sessions *middleware.SessionAuth, questionnaire *services.QuestionnaireService) {
	secured := app.Group("/", sessions.Middleware())
	secured.Get("/questionnaire", questionnaire.HandleStatus)
	secured.Post("/questionnaire", questionnaire.HandleSubmit)
	secured.Put("/questionnaire", questionnaire.HandleEdit)
}
