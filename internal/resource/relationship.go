package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"muse-backend/internal/schema"
	"muse-backend/internal/store"
)

// payloadPrefix is the reserved alias prefix payload columns are carried
// under during the detail join, so they cannot collide with same-named
// related-entity columns.
const payloadPrefix = "pv_"

func assignmentNotFound(rel *Relationship, parentID, relatedID string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("No %s assignment for %s/%s", rel.Slug, parentID, relatedID),
	}
}

// assignEdge creates a pivot row for (parent, related). The pre-checks
// produce distinguishable failures; a storage unique violation from a
// concurrent assign surfaces as the same conflict the pre-check yields.
func assignEdge(ctx context.Context, s *store.Store, cfg *Config, rel *Relationship, parentID string, body map[string]any) (map[string]any, error) {
	if _, err := fetchRecord(ctx, s.DB, s.Dialect, cfg, parentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError(cfg.Name, parentID)
		}
		return nil, fmt.Errorf("fetch %s/%s: %w", cfg.Name, parentID, err)
	}

	relatedID, _ := body[rel.BodyField].(string)
	if relatedID == "" {
		return nil, ValidationError([]schema.FieldError{{
			Code: schema.ErrRequired, Field: rel.BodyField,
			Message: fmt.Sprintf("Field '%s' is required", rel.BodyField),
		}})
	}

	// Related lookup is global, not context-scoped.
	existsSQL := fmt.Sprintf("SELECT id FROM %s WHERE id = %s", rel.RelatedTable, s.Dialect.Placeholder(1))
	if _, err := store.QueryRow(ctx, s.DB, existsSQL, relatedID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("Related "+rel.Slug, relatedID)
		}
		return nil, fmt.Errorf("lookup related %s/%s: %w", rel.RelatedTable, relatedID, err)
	}

	pairSQL := fmt.Sprintf("SELECT id FROM %s WHERE %s = %s AND %s = %s",
		rel.PivotTable, rel.ParentKey, s.Dialect.Placeholder(1), rel.RelatedKey, s.Dialect.Placeholder(2))
	if _, err := store.QueryRow(ctx, s.DB, pairSQL, parentID, relatedID); err == nil {
		return nil, ConflictError(fmt.Sprintf("%s %s is already assigned", rel.Slug, relatedID))
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check %s pair: %w", rel.PivotTable, err)
	}

	payload, appErr := extractPayload(rel, body)
	if appErr != nil {
		return nil, appErr
	}

	pb := s.Dialect.NewParamBuilder()
	columns := []string{"id", rel.ParentKey, rel.RelatedKey}
	placeholders := []string{pb.Add(uuid.NewString()), pb.Add(parentID), pb.Add(relatedID)}
	for _, col := range rel.PayloadCols {
		if v, ok := payload[col]; ok {
			columns = append(columns, col)
			placeholders = append(placeholders, pb.Add(v))
		}
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		rel.PivotTable, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := store.Exec(ctx, s.DB, insertSQL, pb.Params()...); err != nil {
		if errors.Is(s.Dialect.MapError(err), store.ErrUniqueViolation) {
			return nil, ConflictError(fmt.Sprintf("%s %s is already assigned", rel.Slug, relatedID))
		}
		return nil, fmt.Errorf("insert %s: %w", rel.PivotTable, err)
	}

	return fetchEdge(ctx, s, rel, parentID, relatedID)
}

// updateEdgePayload applies a partial set of declared payload fields to an
// existing pivot row. Removal is a separate verb; a body without payload
// fields is rejected rather than treated as a delete.
func updateEdgePayload(ctx context.Context, s *store.Store, rel *Relationship, parentID, relatedID string, body map[string]any) (map[string]any, error) {
	if _, err := fetchEdge(ctx, s, rel, parentID, relatedID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, assignmentNotFound(rel, parentID, relatedID)
		}
		return nil, err
	}

	if !rel.HasPayload() {
		return nil, ValidationError([]schema.FieldError{{
			Code: schema.ErrUnknownField, Field: rel.Slug,
			Message: fmt.Sprintf("Relationship %s has no payload fields", rel.Slug),
		}})
	}

	payload, appErr := extractPayload(rel, body)
	if appErr != nil {
		return nil, appErr
	}
	if len(payload) == 0 {
		return nil, ValidationError([]schema.FieldError{{
			Code: schema.ErrRequired, Field: rel.Slug,
			Message: fmt.Sprintf("At least one of %v is required", rel.PayloadCols),
		}})
	}

	pb := s.Dialect.NewParamBuilder()
	var sets []string
	for _, col := range rel.PayloadCols {
		if v, ok := payload[col]; ok {
			sets = append(sets, fmt.Sprintf("%s = %s", col, pb.Add(v)))
		}
	}
	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s AND %s = %s",
		rel.PivotTable, strings.Join(sets, ", "),
		rel.ParentKey, pb.Add(parentID), rel.RelatedKey, pb.Add(relatedID))
	if _, err := store.Exec(ctx, s.DB, updateSQL, pb.Params()...); err != nil {
		return nil, fmt.Errorf("update %s: %w", rel.PivotTable, err)
	}

	return fetchEdge(ctx, s, rel, parentID, relatedID)
}

// removeEdge hard-deletes the pivot row; pivot rows carry no archived flag.
func removeEdge(ctx context.Context, s *store.Store, rel *Relationship, parentID, relatedID string) error {
	pb := s.Dialect.NewParamBuilder()
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		rel.PivotTable, rel.ParentKey, pb.Add(parentID), rel.RelatedKey, pb.Add(relatedID))
	affected, err := store.Exec(ctx, s.DB, deleteSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", rel.PivotTable, err)
	}
	if affected == 0 {
		return assignmentNotFound(rel, parentID, relatedID)
	}
	return nil
}

func fetchEdge(ctx context.Context, s *store.Store, rel *Relationship, parentID, relatedID string) (map[string]any, error) {
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s AND %s = %s",
		rel.PivotTable, rel.ParentKey, s.Dialect.Placeholder(1), rel.RelatedKey, s.Dialect.Placeholder(2))
	return store.QueryRow(ctx, s.DB, sql, parentID, relatedID)
}

// extractPayload picks the declared payload fields out of the body,
// ignoring everything else, and validates them when a payload schema is
// declared.
func extractPayload(rel *Relationship, body map[string]any) (map[string]any, *AppError) {
	payload := make(map[string]any)
	for _, col := range rel.PayloadCols {
		if v, ok := body[col]; ok {
			payload[col] = v
		}
	}
	if len(payload) == 0 || rel.PayloadSchema == nil {
		return payload, nil
	}
	parsed, errs := rel.PayloadSchema.Partial().Parse(payload)
	if len(errs) > 0 {
		return nil, ValidationError(errs)
	}
	return parsed, nil
}

// enrichEdges attaches, for every payload-carrying relationship, the
// related rows with their payload columns flattened on. The pivot's
// payload columns travel under a reserved prefix during the join and are
// stripped back afterwards. A key already produced by the custom detail
// enricher wins.
func enrichEdges(ctx context.Context, q store.Querier, d store.Dialect, cfg *Config, row map[string]any, parentID string) error {
	for i := range cfg.Relationships {
		rel := &cfg.Relationships[i]
		if !rel.HasPayload() {
			continue
		}
		if _, taken := row[rel.Slug]; taken {
			continue
		}

		selects := []string{"r.*"}
		for _, col := range rel.PayloadCols {
			selects = append(selects, fmt.Sprintf("p.%s AS %s%s", col, payloadPrefix, col))
		}
		sql := fmt.Sprintf("SELECT %s FROM %s p JOIN %s r ON r.id = p.%s WHERE p.%s = %s",
			strings.Join(selects, ", "), rel.PivotTable, rel.RelatedTable,
			rel.RelatedKey, rel.ParentKey, d.Placeholder(1))
		related, err := store.QueryRows(ctx, q, sql, parentID)
		if err != nil {
			return fmt.Errorf("enrich relationship %s: %w", rel.Slug, err)
		}

		for _, r := range related {
			for key, v := range r {
				if strings.HasPrefix(key, payloadPrefix) {
					r[strings.TrimPrefix(key, payloadPrefix)] = v
					delete(r, key)
				}
			}
		}

		if related == nil {
			related = []map[string]any{}
		}
		if d.NeedsBoolFix() {
			store.NormalizeBooleans(related, []string{"archived"})
		}
		row[rel.Slug] = related
	}
	return nil
}
