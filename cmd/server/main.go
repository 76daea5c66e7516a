package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/crossposthq/crosspost-api/configs"
	"github.com/crossposthq/crosspost-api/internal/api/handlers"
	"github.com/crossposthq/crosspost-api/internal/api/middleware"
	job "github.com/crossposthq/crosspost-api/internal/jobs"
	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/publish"
	"github.com/crossposthq/crosspost-api/internal/queue"
	"github.com/crossposthq/crosspost-api/internal/repository"
	"github.com/crossposthq/crosspost-api/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	platformPostRepo := repository.NewPlatformPostRepository(db)

	linkedinService := service.NewLinkedinService(*cfg, socialAccountRepo)
	xService := service.NewXService(*cfg, socialAccountRepo)

	refreshers := map[string]service.TokenRefresher{
		models.PlatformLinkedin: linkedinService,
		models.PlatformX:        xService,
	}
	credentialResolver := service.NewCredentialService(*cfg, socialAccountRepo, refreshers)

	mediaService, err := service.NewMediaService(context.Background(), *cfg)
	if err != nil {
		log.Fatalf("Failed to initialize media storage: %v", err)
	}

	accountService := service.NewAccountService(socialAccountRepo)
	postService := service.NewPostService(postRepo, platformPostRepo, mediaService, client, inspector, cfg.MaxPublishAttempts)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	platform := handlers.NewPlatformHandler(*cfg, linkedinService, xService, accountService)
	app.Get("/auth/:platform/callback", platform.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/connect/:platform", platform.AddSocialAccount)
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts/remove", platform.DeleteSocialAccount)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/cancel", post.CancelPost)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, refreshers)

	// queue worker
	publishers := map[string]publish.Publisher{
		models.PlatformLinkedin: linkedinService,
		models.PlatformX:        xService,
	}
	queueW := queue.NewQueue(postRepo, platformPostRepo, credentialResolver, publishers)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency:    cfg.WorkerConcurrency,
			RetryDelayFunc: queue.RetryDelay,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
