package resource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"muse-backend/internal/schema"
	"muse-backend/internal/store"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// ListQuery is a parsed, validated list request.
type ListQuery struct {
	Page     int
	PageSize int
	Sort     string // resolved storage column
	Order    string // ASC or DESC
	Search   string
	Archived *bool
	Extra    []FilterValue
}

// FilterValue pairs an extra-filter declaration with its coerced value.
type FilterValue struct {
	Filter Filter
	Value  any
}

type QueryResult struct {
	SQL    string
	Params []any
}

// ParseListQuery parses and validates list query parameters against the
// resource configuration. Unknown sort names fall back to the default
// sort; malformed values are rejected.
func ParseListQuery(c *fiber.Ctx, cfg *Config) (*ListQuery, *AppError) {
	q := &ListQuery{
		Page:     1,
		PageSize: defaultPageSize,
		Sort:     cfg.DefaultSort,
		Order:    cfg.defaultOrder(),
		Search:   strings.TrimSpace(c.Query("search")),
	}

	var errs []schema.FieldError

	if p := c.Query("page"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 {
			errs = append(errs, schema.FieldError{
				Code: schema.ErrTypeMismatch, Field: "page",
				Message: "page must be a positive integer",
			})
		} else {
			q.Page = v
		}
	}

	if ps := c.Query("pageSize"); ps != "" {
		v, err := strconv.Atoi(ps)
		if err != nil || v < 1 {
			errs = append(errs, schema.FieldError{
				Code: schema.ErrTypeMismatch, Field: "pageSize",
				Message: "pageSize must be a positive integer",
			})
		} else {
			if v > maxPageSize {
				v = maxPageSize
			}
			q.PageSize = v
		}
	}

	if sort := c.Query("sort"); sort != "" {
		if col, ok := cfg.SortColumns[sort]; ok {
			q.Sort = col
		}
	}

	switch order := strings.ToLower(c.Query("order")); order {
	case "":
	case "asc":
		q.Order = "ASC"
	case "desc":
		q.Order = "DESC"
	default:
		errs = append(errs, schema.FieldError{
			Code: schema.ErrEnumInvalid, Field: "order",
			Message: "order must be asc or desc",
		})
	}

	if a := c.Query("archived"); a != "" {
		v, err := strconv.ParseBool(a)
		if err != nil {
			errs = append(errs, schema.FieldError{
				Code: schema.ErrTypeMismatch, Field: "archived",
				Message: "archived must be a boolean",
			})
		} else {
			q.Archived = &v
		}
	}

	for _, f := range cfg.Filters {
		raw := strings.TrimSpace(c.Query(f.Param))
		if raw == "" {
			continue
		}
		value := any(raw)
		if f.Coerce != nil {
			coerced, err := f.Coerce(raw)
			if err != nil {
				errs = append(errs, schema.FieldError{
					Code: schema.ErrTypeMismatch, Field: f.Param,
					Message: fmt.Sprintf("Invalid value for %s: %v", f.Param, err),
				})
				continue
			}
			value = coerced
		}
		q.Extra = append(q.Extra, FilterValue{Filter: f, Value: value})
	}

	if len(errs) > 0 {
		return nil, ValidationError(errs)
	}
	return q, nil
}

// BuildListSQL builds the page query. The WHERE clause is produced by the
// same predicate set as BuildCountSQL so pagination metadata stays
// consistent with the returned rows.
func BuildListSQL(d store.Dialect, cfg *Config, q *ListQuery) QueryResult {
	pb := d.NewParamBuilder()

	sql := fmt.Sprintf("SELECT * FROM %s", cfg.Table)
	if where := buildPredicates(d, pb, cfg, q); len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY %s %s", q.Sort, q.Order)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(q.PageSize), pb.Add((q.Page-1)*q.PageSize))

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildCountSQL builds the total-count query over the identical predicate set.
func BuildCountSQL(d store.Dialect, cfg *Config, q *ListQuery) QueryResult {
	pb := d.NewParamBuilder()

	sql := fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", cfg.Table)
	if where := buildPredicates(d, pb, cfg, q); len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	return QueryResult{SQL: sql, Params: pb.Params()}
}

func buildPredicates(d store.Dialect, pb store.ParamBuilder, cfg *Config, q *ListQuery) []string {
	var where []string

	if cfg.Context != "" {
		where = append(where, fmt.Sprintf("%s = %s", cfg.contextColumn(), pb.Add(cfg.Context)))
	}

	if q.Archived != nil {
		where = append(where, fmt.Sprintf("archived = %s", pb.Add(*q.Archived)))
	}

	if q.Search != "" && !cfg.SearchDisabled {
		if cfg.SearchColumns == nil {
			where = append(where, fmt.Sprintf("%s = %s", cfg.nameColumn(), pb.Add(q.Search)))
		} else {
			parts := make([]string, 0, len(cfg.SearchColumns))
			for _, col := range cfg.SearchColumns {
				parts = append(parts, d.LikeExpr(col, pb.Add("%"+q.Search+"%")))
			}
			where = append(where, "("+strings.Join(parts, " OR ")+")")
		}
	}

	for _, fv := range q.Extra {
		if fv.Filter.Partial {
			pattern := "%" + fmt.Sprintf("%v", fv.Value) + "%"
			where = append(where, d.LikeExpr(fv.Filter.Column, pb.Add(pattern)))
		} else {
			where = append(where, fmt.Sprintf("%s = %s", fv.Filter.Column, pb.Add(fv.Value)))
		}
	}

	return where
}
