// Package spotify implements the Spotify Web API surface the engine needs:
// paginated playlist and track reads, per-track audio feature enrichment,
// and derived playlist writes.
//
// Response types are based on
// https://developer.spotify.com/documentation/web-api/reference/
package spotify

import (
	"context"

	"github.com/bodywerk/bodywerk/internal/gateway"
	"github.com/bodywerk/bodywerk/internal/models"
)

// BaseURL is the Spotify Web API root. Overridable for tests.
const BaseURL = "https://api.spotify.com/v1"

// Requester is the subset of [gateway.Gateway] consumed here.
type Requester interface {
	Get(ctx context.Context, url string) (*gateway.Response, error)
	Post(ctx context.Context, url string, body any) (*gateway.Response, error)
}

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// User represents a Spotify user profile.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type artist struct {
	Name string `json:"name"`
}

type album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Track is a track object nested in a playlist item. A null or id-less
// track marks a local or unavailable item.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	PreviewURL string   `json:"preview_url"`
	Artists    []artist `json:"artists"`
	Album      album    `json:"album"`
}

// PlaylistItem is one entry of a playlist's track page.
type PlaylistItem struct {
	Track *Track `json:"track"`
}

type trackCount struct {
	Total int `json:"total"`
}

// SimplePlaylist is the playlist shape returned by /me/playlists.
type SimplePlaylist struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Owner       owner      `json:"owner"`
	Public      bool       `json:"public"`
	Tracks      trackCount `json:"tracks"`
	Images      []Image    `json:"images"`
	URI         string     `json:"uri"`
}

// AudioFeatures carries the per-track feature scores the engine relays.
type AudioFeatures struct {
	ID           string  `json:"id"`
	Danceability float64 `json:"danceability"`
}

// Ref converts a playlist page item to the engine's playlist summary.
func (p *SimplePlaylist) Ref() models.PlaylistRef {
	ref := models.PlaylistRef{
		ID:         p.ID,
		Name:       p.Name,
		Owner:      p.Owner.DisplayName,
		TrackCount: p.Tracks.Total,
		Public:     p.Public,
	}
	if len(p.Images) > 0 {
		ref.CoverURL = p.Images[0].URL
	}
	return ref
}

// Ref converts an upstream track to the engine's value type.
func (t *Track) Ref() models.TrackRef {
	ref := models.TrackRef{
		ID:         t.ID,
		URI:        t.URI,
		Name:       t.Name,
		Album:      t.Album.Name,
		PreviewURL: t.PreviewURL,
	}
	for _, a := range t.Artists {
		ref.Artists = append(ref.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		ref.CoverURL = t.Album.Images[0].URL
	}
	return ref
}

// clamp bounds a danceability score to [0, 1].
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
