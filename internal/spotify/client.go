package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"muse-backend/internal/resource"
)

// Client is a thin wrapper over the Spotify Web API track search. It is an
// opaque collaborator: failures surface as 502s and are never retried here.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client. Returns nil if no token is configured.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" || token == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
	}
}

// Track is the normalized metadata shape returned to the admin UI.
type Track struct {
	Name        string   `json:"name"`
	ISRC        string   `json:"isrc"`
	Album       string   `json:"album"`
	Artists     []string `json:"artists"`
	ReleaseDate string   `json:"releaseDate"`
}

type searchResponse struct {
	Tracks struct {
		Items []struct {
			Name  string `json:"name"`
			Album struct {
				Name        string `json:"name"`
				ReleaseDate string `json:"release_date"`
			} `json:"album"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			ExternalIDs struct {
				ISRC string `json:"isrc"`
			} `json:"external_ids"`
		} `json:"items"`
	} `json:"tracks"`
}

// LookupISRC searches for a track by ISRC and returns the first match.
func (c *Client) LookupISRC(ctx context.Context, isrc string) (*Track, error) {
	endpoint := fmt.Sprintf("%s/search?type=track&limit=1&q=%s",
		c.baseURL, url.QueryEscape("isrc:"+isrc))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, resource.NewAppError("SPOTIFY_REQUEST_FAILED", 502, "Failed to create Spotify request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resource.NewAppError("SPOTIFY_REQUEST_FAILED", 502,
			fmt.Sprintf("Failed to connect to Spotify: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resource.NewAppError("SPOTIFY_REQUEST_FAILED", 502, "Failed to read Spotify response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resource.NewAppError("SPOTIFY_REQUEST_FAILED", 502,
			fmt.Sprintf("Spotify returned %d", resp.StatusCode))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, resource.NewAppError("SPOTIFY_REQUEST_FAILED", 502, "Failed to parse Spotify response")
	}
	if len(sr.Tracks.Items) == 0 {
		return nil, resource.NotFoundError("Track", isrc)
	}

	item := sr.Tracks.Items[0]
	track := &Track{
		Name:        item.Name,
		ISRC:        item.ExternalIDs.ISRC,
		Album:       item.Album.Name,
		ReleaseDate: item.Album.ReleaseDate,
	}
	if track.ISRC == "" {
		track.ISRC = isrc
	}
	for _, a := range item.Artists {
		track.Artists = append(track.Artists, a.Name)
	}
	return track, nil
}
