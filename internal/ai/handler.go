package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"muse-backend/internal/resource"
	"muse-backend/internal/store"
)

const systemPrompt = "You write short, vivid cover-art prompts for songs. " +
	"Answer with the prompt text only, no preamble."

type Handler struct {
	store    *store.Store
	provider *Provider
}

func NewHandler(s *store.Store, p *Provider) *Handler {
	return &Handler{store: s, provider: p}
}

type generateRequest struct {
	SongID string `json:"songId"`
}

// GeneratePrompt handles POST /api/ai/prompts: it loads the song and its
// vibes, asks the provider for a cover-art prompt, and stores the result
// as a prompts row.
func (h *Handler) GeneratePrompt(c *fiber.Ctx) error {
	if h.provider == nil {
		return resource.NewAppError("AI_NOT_CONFIGURED", 503, "AI provider is not configured")
	}

	var req generateRequest
	if err := c.BodyParser(&req); err != nil || req.SongID == "" {
		return resource.NewAppError("INVALID_PAYLOAD", 400, "songId is required")
	}

	d := h.store.Dialect
	song, err := store.QueryRow(c.Context(), h.store.DB,
		fmt.Sprintf("SELECT * FROM songs WHERE id = %s", d.Placeholder(1)), req.SongID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resource.NotFoundError("Song", req.SongID)
		}
		return fmt.Errorf("fetch song %s: %w", req.SongID, err)
	}

	vibeRows, err := store.QueryRows(c.Context(), h.store.DB,
		fmt.Sprintf("SELECT v.name, sv.value FROM song_vibes sv JOIN vibes v ON v.id = sv.vibe_id WHERE sv.song_id = %s",
			d.Placeholder(1)), req.SongID)
	if err != nil {
		return fmt.Errorf("fetch vibes for %s: %w", req.SongID, err)
	}

	text, err := h.provider.Generate(c.Context(), systemPrompt, buildUserPrompt(song, vibeRows))
	if err != nil {
		return err
	}

	id := uuid.NewString()
	pb := d.NewParamBuilder()
	insertSQL := fmt.Sprintf(
		"INSERT INTO prompts (id, song_id, title, body, model) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(id), pb.Add(req.SongID),
		pb.Add(fmt.Sprintf("Cover art: %v", song["name"])),
		pb.Add(text), pb.Add(h.provider.Model()))
	if _, err := store.Exec(c.Context(), h.store.DB, insertSQL, pb.Params()...); err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}

	record, err := store.QueryRow(c.Context(), h.store.DB,
		fmt.Sprintf("SELECT * FROM prompts WHERE id = %s", d.Placeholder(1)), id)
	if err != nil {
		return fmt.Errorf("fetch prompt %s: %w", id, err)
	}

	return c.Status(201).JSON(fiber.Map{"data": record})
}

func buildUserPrompt(song map[string]any, vibeRows []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Song: %v", song["name"])
	if bpm := song["bpm"]; bpm != nil {
		fmt.Fprintf(&b, " (%v bpm)", bpm)
	}
	for i, v := range vibeRows {
		if i == 0 {
			b.WriteString(". Vibes: ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", v["name"])
		if v["value"] != nil {
			fmt.Fprintf(&b, " (%v)", v["value"])
		}
	}
	return b.String()
}

// RegisterRoutes mounts the AI routes. Must run before the generic
// resource routes.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Post("/api/ai/prompts", h.GeneratePrompt)
}
