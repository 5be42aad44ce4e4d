package resource

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the generic resource routes. Fixed routes (ai,
// spotify, health) must be registered before this so the :scope segment
// does not shadow them.
func RegisterRoutes(app *fiber.App, h *Handler) {
	api := app.Group("/api")

	api.Get("/:scope/:resource", h.List)
	api.Post("/:scope/:resource", h.Create)
	api.Get("/:scope/:resource/:id", h.GetByID)
	api.Put("/:scope/:resource/:id", h.Update)

	api.Post("/:scope/:resource/:id/:rel", h.Assign)
	api.Put("/:scope/:resource/:id/:rel/:relatedId", h.UpdateRelated)
	api.Delete("/:scope/:resource/:id/:rel/:relatedId", h.RemoveRelated)
}
