package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dilemma-arena/handlers"
	"dilemma-arena/middleware"
	"dilemma-arena/models"
	"dilemma-arena/secondme"
	"dilemma-arena/services"
	"dilemma-arena/utils"
	"dilemma-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable not set", key)
	}
	return value
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		log.Println("ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOrigins = "http://localhost:3000"
	}
	origins := strings.Split(allowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := mustEnv("DATABASE_URL")
	// TranslateError turns unique-constraint failures into
	// gorm.ErrDuplicatedKey, which matchmaking relies on to detect lost races.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Questionnaire{},
		&models.Game{},
		&models.Round{},
		&models.ActiveSeat{},
		&models.LeaderboardEntry{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	agents := secondme.NewClient(mustEnv("SECONDME_API_BASE_URL"))
	sessions := middleware.NewSessionAuth(mustEnv("SESSION_SECRET"))

	authService := services.NewAuthService(db, agents, sessions, services.AuthConfig{
		OAuthURL:      mustEnv("SECONDME_OAUTH_URL"),
		ClientID:      mustEnv("SECONDME_CLIENT_ID"),
		ClientSecret:  mustEnv("SECONDME_CLIENT_SECRET"),
		RedirectURI:   mustEnv("SECONDME_REDIRECT_URI"),
		TokenEndpoint: mustEnv("SECONDME_TOKEN_ENDPOINT"),
	})
	matchmakingService := services.NewMatchmakingService(db)
	roundService := services.NewRoundService(db, agents, authService)
	gameService := services.NewGameService(db)
	questionnaireService := services.NewQuestionnaireService(db, agents, authService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if utils.R2Configured() {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		workers.NewAvatarMirrorWorker(db).Start(ctx)
	} else {
		log.Println("R2 not configured, avatar mirroring disabled")
	}

	gameService.StartLeaderboardScheduler()

	handlers.SetupAuthRoutes(app, authService, sessions)
	handlers.SetupQuestionnaireRoutes(app, sessions, questionnaireService)
	handlers.SetupGameRoutes(app, sessions, matchmakingService, roundService, gameService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5200"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	log.Printf("✅ Arena running on http://localhost:%s", port)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(origins, ","))

	<-ctx.Done()
	log.Println("shutting down server...")
	_ = app.Shutdown()
}
