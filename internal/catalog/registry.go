// Package catalog holds the static resource configurations for the music
// catalog. It is pure configuration: all behavior lives in the resource
// engine, which is parameterized over these descriptors.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"muse-backend/internal/resource"
	"muse-backend/internal/schema"
	"muse-backend/internal/store"
)

// ContextLab and ContextMyMusic partition the songs table into two logical
// resource sets sharing one schema.
const (
	ContextLab     = "lab"
	ContextMyMusic = "my_music"
)

const isrcPattern = `^[A-Z]{2}[A-Z0-9]{3}[0-9]{7}$`

// NewRegistry builds the full resource registry.
func NewRegistry() *resource.Registry {
	return resource.NewRegistry(
		songs(ContextMyMusic),
		songs(ContextLab),
		artists(),
		albums(),
		vibes(),
		prompts(),
	)
}

func songs(scope string) *resource.Config {
	createSchema := schema.New(
		[]schema.Field{
			{Name: "name", Type: "string", Required: true, MaxLen: 200},
			{Name: "isrc", Type: "string", Pattern: isrcPattern},
			{Name: "rating", Type: "int", Min: schema.FloatPtr(0), Max: schema.FloatPtr(5)},
			{Name: "bpm", Type: "int", Min: schema.FloatPtr(0), Max: schema.FloatPtr(400)},
			{Name: "artist_id", Type: "uuid"},
			{Name: "album_id", Type: "uuid"},
			{Name: "audio_url", Type: "string", Pattern: `^https?://`},
		},
		schema.Rule{
			Field:   "artist_id",
			Expr:    `record.album_id == nil || record.artist_id != nil`,
			Message: "A song placed on an album needs an artist",
		},
	)

	return &resource.Config{
		Base:         scope + "/songs",
		Name:         "Song",
		Table:        "songs",
		Context:      scope,
		CreateSchema: createSchema,
		DefaultSort:  "created_at",
		DefaultOrder: "desc",
		SortColumns: map[string]string{
			"name":      "name",
			"rating":    "rating",
			"bpm":       "bpm",
			"createdAt": "created_at",
			"updatedAt": "updated_at",
		},
		SearchColumns: []string{"name", "isrc"},
		Filters: []resource.Filter{
			{Param: "artistId", Column: "artist_id", Coerce: coerceUUID},
			{Param: "albumId", Column: "album_id", Coerce: coerceUUID},
			{Param: "isrc", Column: "isrc", Partial: true},
		},
		Joins: []resource.Join{
			{Column: "artist_id", Table: "artists"},
			{Column: "album_id", Table: "albums"},
		},
		Relationships: []resource.Relationship{
			{
				Slug:         "artists",
				PivotTable:   "song_artists",
				RelatedTable: "artists",
				ParentKey:    "song_id",
				RelatedKey:   "artist_id",
				BodyField:    "artistId",
			},
			{
				Slug:         "vibes",
				PivotTable:   "song_vibes",
				RelatedTable: "vibes",
				ParentKey:    "song_id",
				RelatedKey:   "vibe_id",
				BodyField:    "vibeId",
				PayloadCols:  []string{"value"},
				PayloadSchema: schema.New([]schema.Field{
					{Name: "value", Type: "string", MaxLen: 500},
				}),
			},
		},
		DetailEnricher: attachLatestPrompt,
	}
}

func artists() *resource.Config {
	return &resource.Config{
		Base: ContextMyMusic + "/artists",
		Name: "Artist",
		Table: "artists",
		CreateSchema: schema.New([]schema.Field{
			{Name: "name", Type: "string", Required: true, MaxLen: 120},
			{Name: "bio", Type: "string"},
			{Name: "image_url", Type: "string", Pattern: `^https?://`},
		}),
		DefaultSort:  "name",
		DefaultOrder: "asc",
		SortColumns: map[string]string{
			"name":      "name",
			"createdAt": "created_at",
		},
		// No SearchColumns: search falls back to name equality.
	}
}

func albums() *resource.Config {
	return &resource.Config{
		Base: ContextMyMusic + "/albums",
		Name: "Album",
		Table: "albums",
		CreateSchema: schema.New([]schema.Field{
			{Name: "name", Type: "string", Required: true, MaxLen: 200},
			{Name: "artist_id", Type: "uuid"},
			{Name: "release_date", Type: "string", Pattern: `^\d{4}-\d{2}-\d{2}$`},
			{Name: "cover_url", Type: "string", Pattern: `^https?://`},
		}),
		DefaultSort:  "name",
		DefaultOrder: "asc",
		SortColumns: map[string]string{
			"name":        "name",
			"releaseDate": "release_date",
			"createdAt":   "created_at",
		},
		SearchColumns: []string{"name"},
		Filters: []resource.Filter{
			{Param: "artistId", Column: "artist_id", Coerce: coerceUUID},
		},
		Joins: []resource.Join{
			{Column: "artist_id", Table: "artists"},
		},
		ListEnricher: attachSongCounts,
	}
}

func vibes() *resource.Config {
	return &resource.Config{
		Base: ContextMyMusic + "/vibes",
		Name: "Vibe",
		Table: "vibes",
		CreateSchema: schema.New([]schema.Field{
			{Name: "name", Type: "string", Required: true, MaxLen: 80},
			{Name: "category", Type: "string", Enum: []string{"mood", "genre", "energy", "era"}},
			{Name: "description", Type: "string"},
		}),
		DefaultSort:    "name",
		DefaultOrder:   "asc",
		SortColumns:    map[string]string{"name": "name", "category": "category"},
		SearchDisabled: true,
		Filters: []resource.Filter{
			{Param: "category", Column: "category"},
		},
	}
}

func prompts() *resource.Config {
	return &resource.Config{
		Base: ContextMyMusic + "/prompts",
		Name: "Prompt",
		Table: "prompts",
		CreateSchema: schema.New([]schema.Field{
			{Name: "song_id", Type: "uuid", Required: true},
			{Name: "title", Type: "string", Required: true, MaxLen: 200},
			{Name: "body", Type: "string", Required: true},
			{Name: "model", Type: "string"},
		}),
		DefaultSort:  "created_at",
		DefaultOrder: "desc",
		SortColumns: map[string]string{
			"title":     "title",
			"createdAt": "created_at",
		},
		SearchColumns: []string{"title", "body"},
		Filters: []resource.Filter{
			{Param: "songId", Column: "song_id", Coerce: coerceUUID},
			{Param: "model", Column: "model", Partial: true},
		},
		Joins: []resource.Join{
			{Column: "song_id", Table: "songs"},
		},
	}
}

func coerceUUID(raw string) (any, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return nil, fmt.Errorf("not a valid uuid")
	}
	return raw, nil
}

// attachLatestPrompt puts the most recent prompt for a song under
// "latest_prompt" (null when the song has none).
func attachLatestPrompt(ctx context.Context, q store.Querier, d store.Dialect, rows []map[string]any) error {
	for _, row := range rows {
		sql := fmt.Sprintf(
			"SELECT * FROM prompts WHERE song_id = %s ORDER BY created_at DESC LIMIT 1",
			d.Placeholder(1))
		prompt, err := store.QueryRow(ctx, q, sql, row["id"])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				row["latest_prompt"] = nil
				continue
			}
			return fmt.Errorf("latest prompt: %w", err)
		}
		row["latest_prompt"] = prompt
	}
	return nil
}

// attachSongCounts adds "song_count" to each album row with one grouped
// query over the page.
func attachSongCounts(ctx context.Context, q store.Querier, d store.Dialect, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row["id"])
	}

	pb := d.NewParamBuilder()
	sql := fmt.Sprintf(
		"SELECT album_id, COUNT(*) AS n FROM songs WHERE %s GROUP BY album_id",
		d.InExpr("album_id", pb, ids))
	counts, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return fmt.Errorf("song counts: %w", err)
	}

	byAlbum := make(map[string]any, len(counts))
	for _, c := range counts {
		byAlbum[fmt.Sprintf("%v", c["album_id"])] = c["n"]
	}
	for _, row := range rows {
		if n, ok := byAlbum[fmt.Sprintf("%v", row["id"])]; ok {
			row["song_count"] = n
		} else {
			row["song_count"] = int64(0)
		}
	}
	return nil
}
