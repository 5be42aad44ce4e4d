package resource

import (
	"context"
	"errors"
	"fmt"

	"muse-backend/internal/store"
)

// EnrichList expands the configured FK columns across a whole page of rows.
// One batched lookup is issued per FK column over the distinct non-null
// values; rows whose FK is null or absent get an explicit null sub-object,
// never a missing key.
func EnrichList(ctx context.Context, q store.Querier, d store.Dialect, cfg *Config, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	for _, join := range cfg.Joins {
		key := join.Key()
		values := collectValues(rows, join.Column)
		if len(values) == 0 {
			for _, row := range rows {
				row[key] = nil
			}
			continue
		}

		pb := d.NewParamBuilder()
		sql := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s",
			join.LabelColumn(), join.Table, d.InExpr("id", pb, values))
		targets, err := store.QueryRows(ctx, q, sql, pb.Params()...)
		if err != nil {
			return fmt.Errorf("enrich %s: %w", join.Column, err)
		}

		byID := make(map[string]map[string]any, len(targets))
		for _, t := range targets {
			byID[fmt.Sprintf("%v", t["id"])] = map[string]any{
				"id":   t["id"],
				"name": t[join.LabelColumn()],
			}
		}

		for _, row := range rows {
			v := row[join.Column]
			if v == nil {
				row[key] = nil
				continue
			}
			if sub, ok := byID[fmt.Sprintf("%v", v)]; ok {
				row[key] = sub
			} else {
				row[key] = nil
			}
		}
	}

	return nil
}

// EnrichDetail expands the configured FK columns on a single row with one
// point lookup per column.
func EnrichDetail(ctx context.Context, q store.Querier, d store.Dialect, cfg *Config, row map[string]any) error {
	for _, join := range cfg.Joins {
		key := join.Key()
		v := row[join.Column]
		if v == nil {
			row[key] = nil
			continue
		}

		sql := fmt.Sprintf("SELECT id, %s FROM %s WHERE id = %s",
			join.LabelColumn(), join.Table, d.Placeholder(1))
		target, err := store.QueryRow(ctx, q, sql, v)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				row[key] = nil
				continue
			}
			return fmt.Errorf("enrich %s: %w", join.Column, err)
		}

		row[key] = map[string]any{
			"id":   target["id"],
			"name": target[join.LabelColumn()],
		}
	}

	return nil
}

func collectValues(rows []map[string]any, column string) []any {
	seen := make(map[string]bool)
	var values []any
	for _, row := range rows {
		v := row[column]
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if !seen[s] {
			seen[s] = true
			values = append(values, v)
		}
	}
	return values
}
