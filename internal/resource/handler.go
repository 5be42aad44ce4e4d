package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"muse-backend/internal/store"
)

type Handler struct {
	store    *store.Store
	registry *Registry
}

func NewHandler(s *store.Store, reg *Registry) *Handler {
	return &Handler{store: s, registry: reg}
}

// List handles GET /api/:scope/:resource
func (h *Handler) List(c *fiber.Ctx) error {
	cfg, err := h.resolveConfig(c)
	if err != nil {
		return err
	}

	q, appErr := ParseListQuery(c, cfg)
	if appErr != nil {
		return appErr
	}

	qr := BuildListSQL(h.store.Dialect, cfg, q)
	rows, err := store.QueryRows(c.Context(), h.store.DB, qr.SQL, qr.Params...)
	if err != nil {
		return fmt.Errorf("list %s: %w", cfg.Name, err)
	}

	cr := BuildCountSQL(h.store.Dialect, cfg, q)
	countRow, err := store.QueryRow(c.Context(), h.store.DB, cr.SQL, cr.Params...)
	if err != nil {
		return fmt.Errorf("count %s: %w", cfg.Name, err)
	}

	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, cfg.BoolColumns())
	}

	// FK enrichment runs before the custom enricher: the enricher may
	// assume the FK sub-objects are already present.
	if err := EnrichList(c.Context(), h.store.DB, h.store.Dialect, cfg, rows); err != nil {
		return err
	}
	if cfg.ListEnricher != nil {
		if err := cfg.ListEnricher(c.Context(), h.store.DB, h.store.Dialect, rows); err != nil {
			return fmt.Errorf("list enricher %s: %w", cfg.Name, err)
		}
	}

	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data":     rows,
		"total":    countRow["total"],
		"page":     q.Page,
		"pageSize": q.PageSize,
	})
}

// Create handles POST /api/:scope/:resource
func (h *Handler) Create(c *fiber.Ctx) error {
	cfg, err := h.resolveConfig(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	fields, validationErrs := cfg.CreateSchema.Parse(body)
	if len(validationErrs) > 0 {
		return ValidationError(validationErrs)
	}

	id := uuid.NewString()
	if err := h.insertRecord(c.Context(), cfg, id, fields); err != nil {
		return fmt.Errorf("insert %s: %w", cfg.Name, err)
	}

	record, err := fetchRecord(c.Context(), h.store.DB, h.store.Dialect, cfg, id)
	if err != nil {
		return fmt.Errorf("fetch created %s/%s: %w", cfg.Name, id, err)
	}
	h.fixBools(cfg, record)

	return c.Status(201).JSON(fiber.Map{"data": record})
}

// GetByID handles GET /api/:scope/:resource/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	cfg, err := h.resolveConfig(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	row, err := fetchRecord(c.Context(), h.store.DB, h.store.Dialect, cfg, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(cfg.Name, id)
		}
		return fmt.Errorf("get %s/%s: %w", cfg.Name, id, err)
	}
	h.fixBools(cfg, row)

	if err := EnrichDetail(c.Context(), h.store.DB, h.store.Dialect, cfg, row); err != nil {
		return err
	}
	if cfg.DetailEnricher != nil {
		if err := cfg.DetailEnricher(c.Context(), h.store.DB, h.store.Dialect, []map[string]any{row}); err != nil {
			return fmt.Errorf("detail enricher %s: %w", cfg.Name, err)
		}
	}
	if err := enrichEdges(c.Context(), h.store.DB, h.store.Dialect, cfg, row, id); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": row})
}

// Update handles PUT /api/:scope/:resource/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	cfg, err := h.resolveConfig(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if _, err := fetchRecord(c.Context(), h.store.DB, h.store.Dialect, cfg, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(cfg.Name, id)
		}
		return fmt.Errorf("fetch %s/%s: %w", cfg.Name, id, err)
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	fields, validationErrs := cfg.EffectiveUpdateSchema().Parse(body)
	if len(validationErrs) > 0 {
		return ValidationError(validationErrs)
	}

	if err := h.updateRecord(c.Context(), cfg, id, fields); err != nil {
		return fmt.Errorf("update %s/%s: %w", cfg.Name, id, err)
	}

	// Updates return the row unenriched; enrichment is a read-time concern.
	record, err := fetchRecord(c.Context(), h.store.DB, h.store.Dialect, cfg, id)
	if err != nil {
		return fmt.Errorf("fetch updated %s/%s: %w", cfg.Name, id, err)
	}
	h.fixBools(cfg, record)

	return c.JSON(fiber.Map{"data": record})
}

// Assign handles POST /api/:scope/:resource/:id/:rel
func (h *Handler) Assign(c *fiber.Ctx) error {
	cfg, rel, err := h.resolveRelationship(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	record, err := assignEdge(c.Context(), h.store, cfg, rel, c.Params("id"), body)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": record})
}

// UpdateRelated handles PUT /api/:scope/:resource/:id/:rel/:relatedId
func (h *Handler) UpdateRelated(c *fiber.Ctx) error {
	_, rel, err := h.resolveRelationship(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	record, err := updateEdgePayload(c.Context(), h.store, rel, c.Params("id"), c.Params("relatedId"), body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// RemoveRelated handles DELETE /api/:scope/:resource/:id/:rel/:relatedId
func (h *Handler) RemoveRelated(c *fiber.Ctx) error {
	_, rel, err := h.resolveRelationship(c)
	if err != nil {
		return err
	}

	relatedID := c.Params("relatedId")
	if err := removeEdge(c.Context(), h.store, rel, c.Params("id"), relatedID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": relatedID}})
}

func (h *Handler) resolveConfig(c *fiber.Ctx) (*Config, error) {
	scope := c.Params("scope")
	slug := c.Params("resource")
	cfg := h.registry.Get(scope, slug)
	if cfg == nil {
		return nil, UnknownResourceError(scope + "/" + slug)
	}
	return cfg, nil
}

func (h *Handler) resolveRelationship(c *fiber.Ctx) (*Config, *Relationship, error) {
	cfg, err := h.resolveConfig(c)
	if err != nil {
		return nil, nil, err
	}
	slug := c.Params("rel")
	rel := cfg.Relationship(slug)
	if rel == nil {
		return nil, nil, UnknownResourceError(cfg.Base + "/" + slug)
	}
	return cfg, rel, nil
}

func (h *Handler) fixBools(cfg *Config, row map[string]any) {
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, cfg.BoolColumns())
	}
}

// fetchRecord looks a row up by primary key, scoped by context when the
// config declares one: a row in another logical context is not found.
func fetchRecord(ctx context.Context, q store.Querier, d store.Dialect, cfg *Config, id string) (map[string]any, error) {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("SELECT * FROM %s WHERE id = %s", cfg.Table, pb.Add(id))
	if cfg.Context != "" {
		sql += fmt.Sprintf(" AND %s = %s", cfg.contextColumn(), pb.Add(cfg.Context))
	}
	return store.QueryRow(ctx, q, sql, pb.Params()...)
}

func (h *Handler) insertRecord(ctx context.Context, cfg *Config, id string, fields map[string]any) error {
	pb := h.store.Dialect.NewParamBuilder()
	columns := []string{"id"}
	placeholders := []string{pb.Add(id)}

	if cfg.Context != "" {
		columns = append(columns, cfg.contextColumn())
		placeholders = append(placeholders, pb.Add(cfg.Context))
	}

	for _, f := range cfg.CreateSchema.Fields() {
		if v, ok := fields[f.Name]; ok {
			columns = append(columns, f.Name)
			placeholders = append(placeholders, pb.Add(v))
		}
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		cfg.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	_, err := store.Exec(ctx, h.store.DB, sql, pb.Params()...)
	return err
}

// updateRecord applies a partial field set. The updated_at stamp is
// refreshed on every update regardless of which fields were supplied.
func (h *Handler) updateRecord(ctx context.Context, cfg *Config, id string, fields map[string]any) error {
	pb := h.store.Dialect.NewParamBuilder()
	sets := []string{fmt.Sprintf("updated_at = %s", h.store.Dialect.NowExpr())}

	for _, f := range cfg.EffectiveUpdateSchema().Fields() {
		if v, ok := fields[f.Name]; ok {
			sets = append(sets, fmt.Sprintf("%s = %s", f.Name, pb.Add(v)))
		}
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		cfg.Table, strings.Join(sets, ", "), pb.Add(id))
	_, err := store.Exec(ctx, h.store.DB, sql, pb.Params()...)
	return err
}
