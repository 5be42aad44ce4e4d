package schema

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
)

// Error codes carried on FieldError.Code.
const (
	ErrRequired      = "required"
	ErrTypeMismatch  = "type_mismatch"
	ErrEnumInvalid   = "enum_invalid"
	ErrPattern       = "pattern_mismatch"
	ErrOutOfRange    = "out_of_range"
	ErrTooLong       = "too_long"
	ErrUnknownField  = "unknown_field"
	ErrRuleViolation = "rule_violation"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Field declares one body field: its wire type and constraints.
// Supported types: string, int, float, bool, uuid.
type Field struct {
	Name     string
	Type     string
	Required bool
	Enum     []string
	Pattern  string
	Min      *float64
	Max      *float64
	MaxLen   int

	pattern *regexp.Regexp
}

// Rule is a compiled cross-field expression evaluated against the parsed
// record. The expression must yield true for the record to be accepted.
type Rule struct {
	Field   string
	Expr    string
	Message string

	program *vm.Program
}

// Schema is a declarative request-body schema. Construction compiles all
// patterns and rule expressions; schemas live in the static registry, so a
// bad definition is a programming error and panics at startup.
type Schema struct {
	fields []Field
	rules  []Rule
}

func New(fields []Field, rules ...Rule) *Schema {
	compiled := make([]Field, len(fields))
	for i, f := range fields {
		if f.Pattern != "" {
			f.pattern = regexp.MustCompile(f.Pattern)
		}
		compiled[i] = f
	}
	compiledRules := make([]Rule, len(rules))
	for i, r := range rules {
		program, err := expr.Compile(r.Expr)
		if err != nil {
			panic(fmt.Sprintf("schema: compile rule %q: %v", r.Expr, err))
		}
		r.program = program
		compiledRules[i] = r
	}
	return &Schema{fields: compiled, rules: compiledRules}
}

// Fields returns the declared fields.
func (s *Schema) Fields() []Field {
	return s.fields
}

// BoolColumns returns the names of boolean fields. Used for SQLite
// integer-to-bool normalization on read.
func (s *Schema) BoolColumns() []string {
	var cols []string
	for _, f := range s.fields {
		if f.Type == "bool" {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// Partial returns a copy of the schema with every field optional.
func (s *Schema) Partial() *Schema {
	fields := make([]Field, len(s.fields))
	for i, f := range s.fields {
		f.Required = false
		fields[i] = f
	}
	return &Schema{fields: fields, rules: s.rules}
}

// WithArchived returns a copy of the schema with an optional archived
// boolean appended. Used to synthesize update schemas.
func (s *Schema) WithArchived() *Schema {
	for _, f := range s.fields {
		if f.Name == "archived" {
			return s
		}
	}
	fields := make([]Field, len(s.fields), len(s.fields)+1)
	copy(fields, s.fields)
	fields = append(fields, Field{Name: "archived", Type: "bool"})
	return &Schema{fields: fields, rules: s.rules}
}

// Parse validates and coerces a raw request body against the schema.
// On success it returns a typed map holding only declared fields; on
// failure it returns the full list of field errors.
func (s *Schema) Parse(body map[string]any) (map[string]any, []FieldError) {
	var errs []FieldError

	byName := make(map[string]*Field, len(s.fields))
	for i := range s.fields {
		byName[s.fields[i].Name] = &s.fields[i]
	}

	for key := range body {
		if _, ok := byName[key]; !ok {
			errs = append(errs, FieldError{
				Code:    ErrUnknownField,
				Field:   key,
				Message: fmt.Sprintf("Unknown field: %s", key),
			})
		}
	}

	for _, f := range s.fields {
		if _, ok := body[f.Name]; !ok {
			if f.Required {
				errs = append(errs, FieldError{
					Code:    ErrRequired,
					Field:   f.Name,
					Message: fmt.Sprintf("Field '%s' is required", f.Name),
				})
			}
		}
	}

	out := make(map[string]any, len(body))
	for _, f := range s.fields {
		raw, ok := body[f.Name]
		if !ok {
			continue
		}
		if raw == nil {
			if f.Required {
				errs = append(errs, FieldError{
					Code:    ErrRequired,
					Field:   f.Name,
					Message: fmt.Sprintf("Field '%s' must not be null", f.Name),
				})
				continue
			}
			out[f.Name] = nil
			continue
		}
		val, fieldErr := coerceField(&f, raw)
		if fieldErr != nil {
			errs = append(errs, *fieldErr)
			continue
		}
		out[f.Name] = val
	}

	if len(errs) > 0 {
		return nil, errs
	}

	for _, r := range s.rules {
		result, err := expr.Run(r.program, map[string]any{"record": out})
		if err != nil {
			errs = append(errs, FieldError{Code: ErrRuleViolation, Field: r.Field, Message: r.Message})
			continue
		}
		if ok, _ := result.(bool); !ok {
			errs = append(errs, FieldError{Code: ErrRuleViolation, Field: r.Field, Message: r.Message})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return out, nil
}

func coerceField(f *Field, raw any) (any, *FieldError) {
	switch f.Type {
	case "string":
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, "string")
		}
		if f.MaxLen > 0 && len(s) > f.MaxLen {
			return nil, &FieldError{
				Code:    ErrTooLong,
				Field:   f.Name,
				Message: fmt.Sprintf("Field '%s' exceeds %d characters", f.Name, f.MaxLen),
			}
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return nil, &FieldError{
				Code:    ErrEnumInvalid,
				Field:   f.Name,
				Message: fmt.Sprintf("Field '%s' must be one of %v", f.Name, f.Enum),
			}
		}
		if f.pattern != nil && !f.pattern.MatchString(s) {
			return nil, &FieldError{
				Code:    ErrPattern,
				Field:   f.Name,
				Message: fmt.Sprintf("Field '%s' has invalid format", f.Name),
			}
		}
		return s, nil

	case "int":
		n, ok := asInt(raw)
		if !ok {
			return nil, typeErr(f, "integer")
		}
		if rangeErr := checkRange(f, float64(n)); rangeErr != nil {
			return nil, rangeErr
		}
		return n, nil

	case "float":
		var v float64
		switch t := raw.(type) {
		case float64:
			v = t
		case int:
			v = float64(t)
		case int64:
			v = float64(t)
		default:
			return nil, typeErr(f, "number")
		}
		if rangeErr := checkRange(f, v); rangeErr != nil {
			return nil, rangeErr
		}
		return v, nil

	case "bool":
		b, ok := raw.(bool)
		if !ok {
			return nil, typeErr(f, "boolean")
		}
		return b, nil

	case "uuid":
		s, ok := raw.(string)
		if !ok {
			return nil, typeErr(f, "uuid string")
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, &FieldError{
				Code:    ErrTypeMismatch,
				Field:   f.Name,
				Message: fmt.Sprintf("Field '%s' is not a valid uuid", f.Name),
			}
		}
		return s, nil

	default:
		return raw, nil
	}
}

func asInt(raw any) (int64, bool) {
	switch t := raw.(type) {
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}

func checkRange(f *Field, v float64) *FieldError {
	if (f.Min != nil && v < *f.Min) || (f.Max != nil && v > *f.Max) {
		return &FieldError{
			Code:    ErrOutOfRange,
			Field:   f.Name,
			Message: fmt.Sprintf("Field '%s' is out of range", f.Name),
		}
	}
	return nil
}

func typeErr(f *Field, want string) *FieldError {
	return &FieldError{
		Code:    ErrTypeMismatch,
		Field:   f.Name,
		Message: fmt.Sprintf("Field '%s' expected %s", f.Name, want),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// FloatPtr is a convenience for Min/Max bounds in static schema definitions.
func FloatPtr(v float64) *float64 {
	return &v
}
