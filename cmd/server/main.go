package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"muse-backend/internal/ai"
	"muse-backend/internal/catalog"
	"muse-backend/internal/config"
	"muse-backend/internal/resource"
	"muse-backend/internal/spotify"
	"muse-backend/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap catalog tables: %v", err)
	}
	log.Println("Catalog tables ready")

	registry := catalog.NewRegistry()

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Fixed routes first: the generic :scope/:resource routes would
	// otherwise shadow them.
	aiHandler := ai.NewHandler(db, ai.NewProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model))
	ai.RegisterRoutes(app, aiHandler)

	spotifyHandler := spotify.NewHandler(spotify.NewClient(cfg.Spotify.BaseURL, cfg.Spotify.Token))
	spotify.RegisterRoutes(app, spotifyHandler)

	resourceHandler := resource.NewHandler(db, registry)
	resource.RegisterRoutes(app, resourceHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *resource.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(resource.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(resource.ErrorResponse{
		Error: &resource.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
