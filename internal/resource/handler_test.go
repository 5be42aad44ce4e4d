package resource_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"muse-backend/internal/catalog"
	"muse-backend/internal/config"
	"muse-backend/internal/resource"
	"muse-backend/internal/store"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := store.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	resource.RegisterRoutes(app, resource.NewHandler(db, catalog.NewRegistry()))
	return app
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *resource.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(resource.ErrorResponse{Error: appErr})
	}
	return c.Status(500).JSON(resource.ErrorResponse{
		Error: &resource.AppError{Code: "INTERNAL_ERROR", Message: err.Error()},
	})
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, raw)
		}
	}
	return resp.StatusCode, out
}

func record(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body)
	}
	return data
}

func createRecord(t *testing.T, app *fiber.App, path string, payload map[string]any) map[string]any {
	t.Helper()
	status, body := doJSON(t, app, "POST", path, payload)
	if status != 201 {
		t.Fatalf("POST %s: expected 201, got %d (%v)", path, status, body)
	}
	return record(t, body)
}

func errCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

func TestCreateSong_Defaults(t *testing.T) {
	app := newTestApp(t)

	song := createRecord(t, app, "/api/my_music/songs", map[string]any{
		"name": "Neon Mirage",
		"isrc": "USAB12400001",
		"bpm":  120,
	})
	if song["id"] == "" || song["id"] == nil {
		t.Error("expected generated id")
	}
	if song["archived"] != false {
		t.Errorf("expected archived false, got %v", song["archived"])
	}
	if song["rating"] != float64(0) {
		t.Errorf("expected default rating 0, got %v", song["rating"])
	}
	if song["created_at"] == nil || song["updated_at"] == nil {
		t.Error("expected timestamps on created record")
	}
}

func TestCreateSong_ValidationInsertsNothing(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, "POST", "/api/my_music/songs", map[string]any{
		"isrc":   "bad format",
		"rating": 9,
	})
	if status != 422 {
		t.Fatalf("expected 422, got %d (%v)", status, body)
	}
	if errCode(t, body) != "VALIDATION_FAILED" {
		t.Errorf("expected VALIDATION_FAILED, got %s", errCode(t, body))
	}
	details, _ := body["error"].(map[string]any)["details"].([]any)
	if len(details) < 3 {
		t.Errorf("expected errors for name, isrc and rating, got %v", details)
	}

	status, body = doJSON(t, app, "GET", "/api/my_music/songs", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["total"] != float64(0) {
		t.Errorf("rejected create must insert nothing, total = %v", body["total"])
	}
}

func TestCreateSong_CrossFieldRule(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, "POST", "/api/my_music/songs", map[string]any{
		"name":     "Orphan Track",
		"album_id": uuid.NewString(),
	})
	if status != 422 {
		t.Fatalf("expected 422 for album without artist, got %d (%v)", status, body)
	}
}

func TestUnknownResource(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, "GET", "/api/my_music/widgets", nil)
	if status != 404 || errCode(t, body) != "UNKNOWN_RESOURCE" {
		t.Errorf("expected 404 UNKNOWN_RESOURCE, got %d %s", status, errCode(t, body))
	}
}

func TestContextScope_Isolation(t *testing.T) {
	app := newTestApp(t)

	mine := createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Mine"})
	createRecord(t, app, "/api/lab/songs", map[string]any{"name": "Experiment"})

	// Each scope lists only its own rows.
	_, body := doJSON(t, app, "GET", "/api/my_music/songs", nil)
	if body["total"] != float64(1) {
		t.Errorf("expected my_music total 1, got %v", body["total"])
	}
	_, body = doJSON(t, app, "GET", "/api/lab/songs", nil)
	if body["total"] != float64(1) {
		t.Errorf("expected lab total 1, got %v", body["total"])
	}

	// A row is unreachable through the other scope.
	status, _ := doJSON(t, app, "GET", fmt.Sprintf("/api/lab/songs/%v", mine["id"]), nil)
	if status != 404 {
		t.Errorf("expected 404 across scopes, got %d", status)
	}
	status, _ = doJSON(t, app, "GET", fmt.Sprintf("/api/my_music/songs/%v", mine["id"]), nil)
	if status != 200 {
		t.Errorf("expected 200 in owning scope, got %d", status)
	}
}

func TestUpdateSong(t *testing.T) {
	app := newTestApp(t)

	song := createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Draft", "rating": 2})
	path := fmt.Sprintf("/api/my_music/songs/%v", song["id"])

	status, body := doJSON(t, app, "PUT", path, map[string]any{"rating": 5})
	if status != 200 {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	updated := record(t, body)
	if updated["rating"] != float64(5) {
		t.Errorf("expected rating 5, got %v", updated["rating"])
	}
	if updated["name"] != "Draft" {
		t.Errorf("omitted fields must be untouched, name = %v", updated["name"])
	}
	// Update responses are plain rows, no FK sub-objects.
	if _, ok := updated["artist"]; ok {
		t.Error("update response must not carry enrichment keys")
	}

	status, _ = doJSON(t, app, "PUT", "/api/my_music/songs/"+uuid.NewString(), map[string]any{"rating": 1})
	if status != 404 {
		t.Errorf("expected 404 for unknown id, got %d", status)
	}
}

func TestArchiveFlagFiltering(t *testing.T) {
	app := newTestApp(t)

	createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Keeper"})
	old := createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Oldie"})

	path := fmt.Sprintf("/api/my_music/songs/%v", old["id"])
	status, body := doJSON(t, app, "PUT", path, map[string]any{"archived": true})
	if status != 200 || record(t, body)["archived"] != true {
		t.Fatalf("expected archived true, got %d (%v)", status, body)
	}

	// Archiving is idempotent.
	status, body = doJSON(t, app, "PUT", path, map[string]any{"archived": true})
	if status != 200 || record(t, body)["archived"] != true {
		t.Fatalf("expected archive to be idempotent, got %d (%v)", status, body)
	}

	// No param: both rows. Explicit param: the matching partition only.
	cases := []struct {
		query string
		total float64
	}{
		{"", 2},
		{"?archived=false", 1},
		{"?archived=true", 1},
	}
	for _, tc := range cases {
		_, body := doJSON(t, app, "GET", "/api/my_music/songs"+tc.query, nil)
		if body["total"] != tc.total {
			t.Errorf("list%s: expected total %v, got %v", tc.query, tc.total, body["total"])
		}
	}

	// Archived rows stay readable by id.
	status, _ = doJSON(t, app, "GET", path, nil)
	if status != 200 {
		t.Errorf("archived row must remain readable, got %d", status)
	}
}

func TestListPagination(t *testing.T) {
	app := newTestApp(t)

	for i := 1; i <= 12; i++ {
		createRecord(t, app, "/api/my_music/songs", map[string]any{
			"name": fmt.Sprintf("Song %02d", i),
		})
	}

	_, body := doJSON(t, app, "GET", "/api/my_music/songs?page=2&pageSize=5&sort=name&order=asc", nil)
	rows, _ := body["data"].([]any)
	if len(rows) != 5 {
		t.Errorf("expected 5 rows on page 2, got %d", len(rows))
	}
	if body["total"] != float64(12) || body["page"] != float64(2) || body["pageSize"] != float64(5) {
		t.Errorf("unexpected metadata: %v", body)
	}
	if first := rows[0].(map[string]any); first["name"] != "Song 06" {
		t.Errorf("expected page 2 to start at Song 06, got %v", first["name"])
	}

	// Pages are disjoint and add up to the total.
	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		_, body := doJSON(t, app, "GET", fmt.Sprintf("/api/my_music/songs?page=%d&pageSize=5&sort=name&order=asc", page), nil)
		rows, _ := body["data"].([]any)
		for _, r := range rows {
			id := r.(map[string]any)["id"].(string)
			if seen[id] {
				t.Errorf("row %s appeared on two pages", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 12 {
		t.Errorf("expected pages to cover all 12 rows, got %d", len(seen))
	}

	// Beyond the last page: empty data, same total.
	_, body = doJSON(t, app, "GET", "/api/my_music/songs?page=9&pageSize=5", nil)
	rows, _ = body["data"].([]any)
	if len(rows) != 0 || body["total"] != float64(12) {
		t.Errorf("expected empty page with total 12, got %d rows total %v", len(rows), body["total"])
	}
}

func TestListSearch(t *testing.T) {
	app := newTestApp(t)

	createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Midnight Run", "isrc": "USAB12400001"})
	createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Daylight", "isrc": "USAB12400002"})

	// Songs search OR-matches name and isrc.
	_, body := doJSON(t, app, "GET", "/api/my_music/songs?search=night", nil)
	if body["total"] != float64(1) {
		t.Errorf("expected 1 name match, got %v", body["total"])
	}
	_, body = doJSON(t, app, "GET", "/api/my_music/songs?search=12400002", nil)
	if body["total"] != float64(1) {
		t.Errorf("expected 1 isrc match, got %v", body["total"])
	}

	// Artists declare no search columns: exact name match only.
	createRecord(t, app, "/api/my_music/artists", map[string]any{"name": "Ana"})
	createRecord(t, app, "/api/my_music/artists", map[string]any{"name": "Anabel"})
	_, body = doJSON(t, app, "GET", "/api/my_music/artists?search=Ana", nil)
	if body["total"] != float64(1) {
		t.Errorf("expected exact-match search for artists, got %v", body["total"])
	}

	// Vibes disable search entirely.
	createRecord(t, app, "/api/my_music/vibes", map[string]any{"name": "Dreamy", "category": "mood"})
	_, body = doJSON(t, app, "GET", "/api/my_music/vibes?search=zzzz", nil)
	if body["total"] != float64(1) {
		t.Errorf("expected search to be ignored for vibes, got %v", body["total"])
	}
}

func TestListExtraFilters(t *testing.T) {
	app := newTestApp(t)

	artist := createRecord(t, app, "/api/my_music/artists", map[string]any{"name": "Mirrorfall"})
	createRecord(t, app, "/api/my_music/songs", map[string]any{
		"name": "Linked", "artist_id": artist["id"], "isrc": "GBXY19900001",
	})
	createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Loose"})

	_, body := doJSON(t, app, "GET", fmt.Sprintf("/api/my_music/songs?artistId=%v", artist["id"]), nil)
	if body["total"] != float64(1) {
		t.Errorf("expected artistId filter to match 1 song, got %v", body["total"])
	}

	// Partial filter on isrc.
	_, body = doJSON(t, app, "GET", "/api/my_music/songs?isrc=GBXY", nil)
	if body["total"] != float64(1) {
		t.Errorf("expected isrc partial filter to match 1 song, got %v", body["total"])
	}

	// Malformed coerced filter is rejected, not ignored.
	status, body := doJSON(t, app, "GET", "/api/my_music/songs?artistId=not-a-uuid", nil)
	if status != 422 {
		t.Errorf("expected 422 for bad uuid filter, got %d (%v)", status, body)
	}

	// Empty value contributes nothing.
	_, body = doJSON(t, app, "GET", "/api/my_music/songs?artistId=", nil)
	if body["total"] != float64(2) {
		t.Errorf("expected empty filter to be skipped, got %v", body["total"])
	}
}

func TestFKEnrichment(t *testing.T) {
	app := newTestApp(t)

	artist := createRecord(t, app, "/api/my_music/artists", map[string]any{"name": "Vela North"})
	song := createRecord(t, app, "/api/my_music/songs", map[string]any{
		"name": "Harbor Lights", "artist_id": artist["id"],
	})

	status, body := doJSON(t, app, "GET", fmt.Sprintf("/api/my_music/songs/%v", song["id"]), nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d (%v)", status, body)
	}
	detail := record(t, body)

	sub, ok := detail["artist"].(map[string]any)
	if !ok {
		t.Fatalf("expected artist sub-object, got %v", detail["artist"])
	}
	if sub["id"] != artist["id"] || sub["name"] != "Vela North" {
		t.Errorf("unexpected artist sub-object: %v", sub)
	}
	if len(sub) != 2 {
		t.Errorf("sub-object must carry id and name only, got %v", sub)
	}

	// Null FK: key present, value explicitly null.
	album, present := detail["album"]
	if !present {
		t.Error("expected album key to be present")
	}
	if album != nil {
		t.Errorf("expected null album, got %v", album)
	}

	// Lists get the same sub-objects.
	_, body = doJSON(t, app, "GET", "/api/my_music/songs", nil)
	rows, _ := body["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0].(map[string]any)["artist"].(map[string]any); !ok {
		t.Errorf("expected artist sub-object in list row, got %v", rows[0])
	}
}

func TestRelationshipLifecycle(t *testing.T) {
	app := newTestApp(t)

	song := createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Duet"})
	artist := createRecord(t, app, "/api/my_music/artists", map[string]any{"name": "Iris Vane"})
	base := fmt.Sprintf("/api/my_music/songs/%v/artists", song["id"])

	// Unknown parent.
	status, _ := doJSON(t, app, "POST", fmt.Sprintf("/api/my_music/songs/%s/artists", uuid.NewString()),
		map[string]any{"artistId": artist["id"]})
	if status != 404 {
		t.Errorf("expected 404 for unknown parent, got %d", status)
	}

	// Unknown related.
	status, _ = doJSON(t, app, "POST", base, map[string]any{"artistId": uuid.NewString()})
	if status != 404 {
		t.Errorf("expected 404 for unknown related, got %d", status)
	}

	// Missing body field.
	status, _ = doJSON(t, app, "POST", base, map[string]any{"wrong": artist["id"]})
	if status != 422 {
		t.Errorf("expected 422 for missing artistId, got %d", status)
	}

	// Unknown relationship slug.
	status, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/my_music/songs/%v/collabs", song["id"]),
		map[string]any{"artistId": artist["id"]})
	if status != 404 {
		t.Errorf("expected 404 for unknown relationship, got %d", status)
	}

	// Assign.
	status, body := doJSON(t, app, "POST", base, map[string]any{"artistId": artist["id"]})
	if status != 201 {
		t.Fatalf("expected 201, got %d (%v)", status, body)
	}
	edge := record(t, body)
	if edge["song_id"] != song["id"] || edge["artist_id"] != artist["id"] {
		t.Errorf("unexpected edge row: %v", edge)
	}

	// Duplicate assign conflicts.
	status, body = doJSON(t, app, "POST", base, map[string]any{"artistId": artist["id"]})
	if status != 409 || errCode(t, body) != "CONFLICT" {
		t.Errorf("expected 409 CONFLICT, got %d %s", status, errCode(t, body))
	}

	// Payload update on a payload-less relationship.
	edgePath := fmt.Sprintf("%s/%v", base, artist["id"])
	status, _ = doJSON(t, app, "PUT", edgePath, map[string]any{"value": "x"})
	if status != 422 {
		t.Errorf("expected 422 for payload-less relationship, got %d", status)
	}

	// Remove, then remove again.
	status, _ = doJSON(t, app, "DELETE", edgePath, nil)
	if status != 200 {
		t.Errorf("expected 200 on remove, got %d", status)
	}
	status, _ = doJSON(t, app, "DELETE", edgePath, nil)
	if status != 404 {
		t.Errorf("expected 404 on second remove, got %d", status)
	}

	// Removal frees the pair for re-assignment.
	status, _ = doJSON(t, app, "POST", base, map[string]any{"artistId": artist["id"]})
	if status != 201 {
		t.Errorf("expected 201 on re-assign, got %d", status)
	}
}

func TestRelationshipPayload(t *testing.T) {
	app := newTestApp(t)

	song := createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Undertow"})
	vibe := createRecord(t, app, "/api/my_music/vibes", map[string]any{"name": "Hazy", "category": "mood"})
	base := fmt.Sprintf("/api/my_music/songs/%v/vibes", song["id"])
	detailPath := fmt.Sprintf("/api/my_music/songs/%v", song["id"])

	// No edges yet: empty array, not null.
	_, body := doJSON(t, app, "GET", detailPath, nil)
	if vibes, ok := record(t, body)["vibes"].([]any); !ok || len(vibes) != 0 {
		t.Errorf("expected empty vibes array, got %v", record(t, body)["vibes"])
	}

	status, body := doJSON(t, app, "POST", base, map[string]any{"vibeId": vibe["id"], "value": "late-night drive"})
	if status != 201 {
		t.Fatalf("expected 201, got %d (%v)", status, body)
	}
	if record(t, body)["value"] != "late-night drive" {
		t.Errorf("expected payload on edge, got %v", record(t, body))
	}

	// Detail flattens the payload onto the related row.
	_, body = doJSON(t, app, "GET", detailPath, nil)
	vibes, _ := record(t, body)["vibes"].([]any)
	if len(vibes) != 1 {
		t.Fatalf("expected 1 vibe, got %d", len(vibes))
	}
	attached := vibes[0].(map[string]any)
	if attached["name"] != "Hazy" || attached["value"] != "late-night drive" {
		t.Errorf("unexpected attached vibe: %v", attached)
	}
	if _, leaked := attached["pv_value"]; leaked {
		t.Error("prefixed payload alias must not leak into the response")
	}

	// Payload update.
	edgePath := fmt.Sprintf("%s/%v", base, vibe["id"])
	status, body = doJSON(t, app, "PUT", edgePath, map[string]any{"value": "sunrise"})
	if status != 200 || record(t, body)["value"] != "sunrise" {
		t.Fatalf("expected updated payload, got %d (%v)", status, body)
	}

	// A body without payload fields is rejected, not treated as removal.
	status, _ = doJSON(t, app, "PUT", edgePath, map[string]any{})
	if status != 422 {
		t.Errorf("expected 422 for empty payload, got %d", status)
	}

	// Payload validation applies.
	status, _ = doJSON(t, app, "PUT", edgePath, map[string]any{"value": 42})
	if status != 422 {
		t.Errorf("expected 422 for non-string value, got %d", status)
	}
}

func TestDetailEnricher_LatestPrompt(t *testing.T) {
	app := newTestApp(t)

	song := createRecord(t, app, "/api/my_music/songs", map[string]any{"name": "Glasswork"})
	detailPath := fmt.Sprintf("/api/my_music/songs/%v", song["id"])

	_, body := doJSON(t, app, "GET", detailPath, nil)
	if v, present := record(t, body)["latest_prompt"]; !present || v != nil {
		t.Errorf("expected explicit null latest_prompt, got %v", v)
	}

	createRecord(t, app, "/api/my_music/prompts", map[string]any{
		"song_id": song["id"], "title": "Cover art: Glasswork", "body": "stained glass in fog",
	})

	_, body = doJSON(t, app, "GET", detailPath, nil)
	prompt, ok := record(t, body)["latest_prompt"].(map[string]any)
	if !ok {
		t.Fatalf("expected latest_prompt object, got %v", record(t, body)["latest_prompt"])
	}
	if prompt["title"] != "Cover art: Glasswork" {
		t.Errorf("unexpected prompt: %v", prompt)
	}
}

func TestAlbumListEnricher_SongCounts(t *testing.T) {
	app := newTestApp(t)

	artist := createRecord(t, app, "/api/my_music/artists", map[string]any{"name": "Low Tide"})
	full := createRecord(t, app, "/api/my_music/albums", map[string]any{"name": "Breakwater"})
	createRecord(t, app, "/api/my_music/albums", map[string]any{"name": "Empty Shelf"})
	for i := 0; i < 2; i++ {
		createRecord(t, app, "/api/my_music/songs", map[string]any{
			"name":      fmt.Sprintf("Track %d", i+1),
			"artist_id": artist["id"],
			"album_id":  full["id"],
		})
	}

	_, body := doJSON(t, app, "GET", "/api/my_music/albums?sort=name&order=asc", nil)
	rows, _ := body["data"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 albums, got %d", len(rows))
	}
	counts := map[string]float64{}
	for _, r := range rows {
		row := r.(map[string]any)
		counts[row["name"].(string)], _ = row["song_count"].(float64)
	}
	if counts["Breakwater"] != 2 || counts["Empty Shelf"] != 0 {
		t.Errorf("unexpected song counts: %v", counts)
	}
}
