package store

import (
	"fmt"
	"strings"
)

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string {
	return "CURRENT_TIMESTAMP"
}

func (d *SQLiteDialect) LikeExpr(column string, placeholder string) string {
	return fmt.Sprintf("%s LIKE %s", column, placeholder)
}

func (d *SQLiteDialect) InExpr(column string, pb ParamBuilder, values []any) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

// MapError matches on the driver's error text; modernc.org/sqlite does not
// export stable error code types for extended result codes.
func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, msg)
	}
	return err
}

func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

func (d *SQLiteDialect) CatalogSQL() string {
	return sqliteCatalogSQL
}

const sqliteCatalogSQL = `
CREATE TABLE IF NOT EXISTS artists (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    bio        TEXT,
    image_url  TEXT,
    archived   INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS albums (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    artist_id    TEXT REFERENCES artists(id),
    release_date TEXT,
    cover_url    TEXT,
    archived     INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
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
    archived   INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_songs_context ON songs(context);

CREATE TABLE IF NOT EXISTS vibes (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    category    TEXT,
    description TEXT,
    archived    INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS prompts (
    id         TEXT PRIMARY KEY,
    song_id    TEXT REFERENCES songs(id),
    title      TEXT NOT NULL,
    body       TEXT NOT NULL,
    model      TEXT,
    archived   INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS song_artists (
    id         TEXT PRIMARY KEY,
    song_id    TEXT NOT NULL REFERENCES songs(id),
    artist_id  TEXT NOT NULL REFERENCES artists(id),
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(song_id, artist_id)
);

CREATE TABLE IF NOT EXISTS song_vibes (
    id         TEXT PRIMARY KEY,
    song_id    TEXT NOT NULL REFERENCES songs(id),
    vibe_id    TEXT NOT NULL REFERENCES vibes(id),
    value      TEXT,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(song_id, vibe_id)
);
`
