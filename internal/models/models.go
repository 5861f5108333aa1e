// package models defines the value types shared across the engine
package models

// TrackRef identifies a single playlist entry as reported by Spotify.
//
// Items without an ID (local files, unavailable markets) cannot be
// re-added to a playlist and are filtered out before enrichment.
type TrackRef struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	CoverURL   string   `json:"cover_url,omitempty"`
	PreviewURL string   `json:"preview_url,omitempty"`
}

// EnrichedTrack is a TrackRef joined with its danceability score.
//
// Danceability is always within [0, 1]. MissingFeatures is set when the
// upstream feature lookup returned no data and the score defaulted to 0.
type EnrichedTrack struct {
	TrackRef
	Danceability    float64 `json:"danceability"`
	MissingFeatures bool    `json:"missing_features,omitempty"`
}

// PlaylistRef is a playlist summary as returned by the catalog.
type PlaylistRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	CoverURL   string `json:"cover_url,omitempty"`
	TrackCount int    `json:"track_count"`
	Public     bool   `json:"public"`
}

// PublishPlan describes a derived playlist to create. Consumed exactly
// once by the publish pipeline.
type PublishPlan struct {
	UserID      string
	Name        string
	Description string
	Public      bool
	TrackURIs   []string
}
