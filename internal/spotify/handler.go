package spotify

import (
	"github.com/gofiber/fiber/v2"

	"muse-backend/internal/resource"
)

type Handler struct {
	client *Client
}

func NewHandler(c *Client) *Handler {
	return &Handler{client: c}
}

// LookupTrack handles GET /api/spotify/tracks?isrc=...
func (h *Handler) LookupTrack(c *fiber.Ctx) error {
	if h.client == nil {
		return resource.NewAppError("SPOTIFY_NOT_CONFIGURED", 503, "Spotify client is not configured")
	}

	isrc := c.Query("isrc")
	if isrc == "" {
		return resource.NewAppError("INVALID_PAYLOAD", 400, "isrc query parameter is required")
	}

	track, err := h.client.LookupISRC(c.Context(), isrc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": track})
}

// RegisterRoutes mounts the Spotify routes. Must run before the generic
// resource routes.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/api/spotify/tracks", h.LookupTrack)
}
