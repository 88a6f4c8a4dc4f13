package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/db"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/handlers"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/services"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/session"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/store"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/utils"
)

func Run() {
	utils.LoadEnv()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if utils.GetEnv("ENV", "development") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	connString := utils.GetEnv("DATABASE_URL", "")
	if connString == "" {
		// Fallback to individual vars
		connString = "postgres://" + utils.GetEnv("POSTGRES_USER", "postgres") + ":" +
			utils.GetEnv("POSTGRES_PASSWORD", "postgres") + "@" +
			utils.GetEnv("POSTGRES_HOST", "localhost") + ":" +
			utils.GetEnv("POSTGRES_PORT", "5432") + "/" +
			utils.GetEnv("POSTGRES_DB", "syncscholars") + "?sslmode=disable"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Persistence is fire-and-forget relative to the broadcast path.
	pg := store.NewPostgres(pool)
	queue := store.NewQueue(pg)
	defer queue.Close()

	registry := session.NewRegistry(clockwork.NewRealClock(), queue,
		session.WithGracePeriods(
			utils.GetEnvDuration("PRESENCE_GRACE", session.DefaultPresenceGrace),
			utils.GetEnvDuration("ROOM_GRACE", session.DefaultRoomGrace),
		))
	defer registry.Drain()

	userService := services.NewUserService(pg)
	groupService := services.NewGroupService(pg, registry)

	app := fiber.New()
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")

	api.Post("/register", func(c *fiber.Ctx) error {
		var req models.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		user, err := userService.Register(c.Context(), req)
		if err != nil {
			if errors.Is(err, services.ErrUserExists) {
				return c.Status(400).JSON(fiber.Map{"error": "username already exists"})
			}
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(user)
	})

	api.Post("/login", func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		res, err := userService.Login(c.Context(), req)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(res)
	})

	protected := api.Group("/")
	protected.Use(handlers.AuthMiddleware)

	protected.Post("/groups", handlers.CreateGroupHandler(groupService))
	protected.Get("/groups/:code", handlers.GetGroupHandler(groupService))
	protected.Post("/groups/:code/join", handlers.JoinGroupHandler(groupService))
	protected.Get("/groups/:code/timer", handlers.GetTimerHandler(groupService))
	protected.Get("/users/:user_id/groups", handlers.ListUserGroupsHandler(groupService))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "timestamp": time.Now().UTC()})
	})

	// WebSocket event channel. Middleware order matters: upgrade check,
	// then token check, then the handler.
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware)
	app.Get("/ws", handlers.WebSocketHandler(groupService))

	port := utils.GetEnv("PORT", "5000")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Panic().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("port", port).Msg("SyncScholars backend running")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	log.Info().Msg("gracefully shutting down...")
	_ = app.Shutdown()
	log.Info().Msg("server shutdown complete")
}
