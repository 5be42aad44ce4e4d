package store

import (
	"context"
	"fmt"
	"strings"
)

// Bootstrap creates the catalog tables if they do not exist.
// Statements are executed one at a time; the sqlite driver does not
// accept multi-statement scripts in a single Exec.
func (s *Store) Bootstrap(ctx context.Context) error {
	script := s.Dialect.CatalogSQL()
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap catalog tables: %w", err)
		}
	}
	return nil
}
