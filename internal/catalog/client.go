package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/stillwave/player/internal/constants"
	"github.com/stillwave/player/internal/domain"
	"github.com/stillwave/player/internal/httpclient"
)

// Client is the HTTP implementation of Resolver against the hosted catalog
// service.
type Client struct {
	BaseURL string
	HTTP    *httpclient.Client
}

func NewClient(baseURL string, hc *httpclient.Client) *Client {
	if hc == nil {
		hc = httpclient.New(nil, constants.MinRequestInterval)
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    hc,
	}
}

// ResolveSignedURL asks the catalog for a playable signed URL. The catalog
// responds with a manifest listing one or more equivalent URLs; the first
// one wins. A 404 or an empty manifest is ErrTrackNotFound; transport or
// server failures surface as plain errors.
func (c *Client) ResolveSignedURL(ctx context.Context, trackID string) (string, error) {
	u := fmt.Sprintf("%s/v1/tracks/%s/stream", c.BaseURL, url.PathEscape(trackID))

	var resp struct {
		Manifest struct {
			URLs     []string `json:"urls"`
			MimeType string   `json:"mime_type"`
		} `json:"manifest"`
	}

	if err := c.get(ctx, u, &resp); err != nil {
		return "", err
	}

	if len(resp.Manifest.URLs) == 0 {
		return "", fmt.Errorf("empty manifest for track %s: %w", trackID, ErrTrackNotFound)
	}

	return resp.Manifest.URLs[0], nil
}

// FetchMetadata returns display metadata for a track.
func (c *Client) FetchMetadata(ctx context.Context, trackID string) (*domain.TrackMetadata, error) {
	u := fmt.Sprintf("%s/v1/tracks/%s", c.BaseURL, url.PathEscape(trackID))

	var resp struct {
		Title           string  `json:"title"`
		Artist          string  `json:"artist"`
		ArtworkURL      string  `json:"artwork_url"`
		DurationSeconds float64 `json:"duration_seconds"`
	}

	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}

	return &domain.TrackMetadata{
		Title:           resp.Title,
		Artist:          resp.Artist,
		ArtworkURL:      resp.ArtworkURL,
		DurationSeconds: resp.DurationSeconds,
	}, nil
}

func (c *Client) get(ctx context.Context, u string, target interface{}) error {
	resp, err := c.HTTP.Get(ctx, u)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTrackNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog request failed: %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
