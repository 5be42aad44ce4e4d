package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string {
	return "NOW()"
}

func (d *PostgresDialect) LikeExpr(column string, placeholder string) string {
	return fmt.Sprintf("%s ILIKE %s", column, placeholder)
}

// InExpr expands values into an IN list. The stdlib pgx driver has no codec
// for []any, so expansion is used instead of = ANY().
func (d *PostgresDialect) InExpr(column string, pb ParamBuilder, values []any) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
	}
	return err
}

func (d *PostgresDialect) NeedsBoolFix() bool { return false }

func (d *PostgresDialect) CatalogSQL() string {
	return pgCatalogSQL
}

const pgCatalogSQL = `
CREATE TABLE IF NOT EXISTS artists (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    bio        TEXT,
    image_url  TEXT,
    archived   BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS albums (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    artist_id    TEXT REFERENCES artists(id),
    release_date TEXT,
    cover_url    TEXT,
    archived     BOOLEAN NOT NULL DEFAULT false,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS songs (
    id         TEXT PRIMARY KEY,
    context    TEXT NOT NULL DEFAULT 'my_music',
    name       TEXT NOT NULL,
    isrc       TEXT UNIQUE,
    rating     INTEGER NOT NULL DEFAULT 0,
    bpm        INTEGER,
    artist_id  TEXT REFERENCES artists(id),
    album_id   TEXT REFERENCES albums(id),
    audio_url  TEXT,
    archived   BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_songs_context ON songs(context);

CREATE TABLE IF NOT EXISTS vibes (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    category    TEXT,
    description TEXT,
    archived    BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS prompts (
    id         TEXT PRIMARY KEY,
    song_id    TEXT REFERENCES songs(id),
    title      TEXT NOT NULL,
    body       TEXT NOT NULL,
    model      TEXT,
    archived   BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS song_artists (
    id         TEXT PRIMARY KEY,
    song_id    TEXT NOT NULL REFERENCES songs(id),
    artist_id  TEXT NOT NULL REFERENCES artists(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(song_id, artist_id)
);

CREATE TABLE IF NOT EXISTS song_vibes (
    id         TEXT PRIMARY KEY,
    song_id    TEXT NOT NULL REFERENCES songs(id),
    vibe_id    TEXT NOT NULL REFERENCES vibes(id),
    value      TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(song_id, vibe_id)
);
`
