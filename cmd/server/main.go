package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FIJTeam/eternitycogs/internal/config"
	"github.com/FIJTeam/eternitycogs/internal/database"
	"github.com/FIJTeam/eternitycogs/internal/discord"
	"github.com/FIJTeam/eternitycogs/internal/handler"
	"github.com/FIJTeam/eternitycogs/internal/middleware"
	"github.com/FIJTeam/eternitycogs/internal/repository"
	"github.com/FIJTeam/eternitycogs/internal/service"
	"github.com/FIJTeam/eternitycogs/internal/verify"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg := config.Load()

	// Database
	db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	linkRepo := repository.NewLinkRepository(db, cfg.TokenTTL)
	playerRepo := repository.NewPlayerRepository(db)
	settingsRepo := repository.NewGuildSettingsRepository(db)

	// Services
	hub := service.NewEventHub()
	// 2 attempts/user/min, 6/guild/min, 3 concurrent per guild
	limiter := verify.NewAttemptLimiter(2, 6, 3)
	verifySvc := service.NewVerificationService(linkRepo, playerRepo, settingsRepo, limiter, hub)

	// Discord bot
	bot, err := discord.NewBot(cfg.BotToken, cfg.CommandPrefix, verifySvc, settingsRepo)
	if err != nil {
		log.Fatalf("Failed to create Discord bot: %v", err)
	}
	if err := bot.Start(); err != nil {
		log.Fatalf("Failed to start Discord bot: %v", err)
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    256 * 1024,
	})

	app.Use(recover.New())
	app.Use(middleware.Logger())

	// Health
	healthH := handler.NewHealthHandler(db)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)

	// API v1
	v1 := app.Group("/api/v1")

	// Server-to-server (game server key auth)
	server := v1.Group("/server", middleware.ServerKey(cfg.ServerKey))
	serverH := handler.NewServerHandler(linkRepo, playerRepo, hub)
	server.Post("/token", middleware.RateLimit(60, time.Minute), serverH.IssueToken)
	server.Post("/playtime", serverH.Playtime)
	server.Get("/link/:ckey", serverH.LinkStatus)

	// Admin / ops
	admin := v1.Group("/admin", middleware.AdminKey(cfg.AdminKey))
	adminH := handler.NewAdminHandler(linkRepo, playerRepo, hub, cfg.JWTSecret)
	admin.Get("/stats", adminH.Stats)
	admin.Post("/ws-ticket", adminH.WSTicket)

	// Event feed (JWT ticket auth)
	wsH := handler.NewWSHandler(hub, cfg.JWTSecret)
	app.Get("/ws", wsH.Upgrade)

	go hub.Run()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Printf("tgverify backend running on :%s (%s)", cfg.Port, cfg.Env)

	<-quit
	log.Println("Shutting down...")
	bot.Stop()
	_ = app.ShutdownWithTimeout(5 * time.Second)
	hub.Shutdown()
	log.Println("Server stopped")
}
