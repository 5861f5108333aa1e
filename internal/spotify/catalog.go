package spotify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bodywerk/bodywerk/internal/models"
	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/charmbracelet/log"
)

// Catalog exposes the high-level read operations: list the user's
// playlists, fetch one playlist's metadata, and fetch its tracks enriched
// with audio features.
type Catalog struct {
	gw            Requester
	enricher      *Enricher
	logger        *log.Logger
	baseURL       string
	listPageSize  int
	trackPageSize int
}

// CatalogOptions configures a Catalog.
type CatalogOptions struct {
	Gateway  Requester
	Enricher *Enricher
	Logger   *log.Logger
	BaseURL  string
	// ListPageSize is the /me/playlists page size (default 50).
	ListPageSize int
	// TrackPageSize is the /playlists/{id}/tracks page size (default 20).
	// Kept small: enrichment is the slow path, and small pages bound
	// memory and shorten the gap to first output under backpressure.
	TrackPageSize int
}

// NewCatalog creates a Catalog with the provided options.
func NewCatalog(opts CatalogOptions) *Catalog {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.ListPageSize <= 0 || opts.ListPageSize > 50 {
		opts.ListPageSize = 50
	}
	if opts.TrackPageSize <= 0 || opts.TrackPageSize > 50 {
		opts.TrackPageSize = 20
	}

	return &Catalog{
		gw:            opts.Gateway,
		enricher:      opts.Enricher,
		logger:        opts.Logger,
		baseURL:       opts.BaseURL,
		listPageSize:  opts.ListPageSize,
		trackPageSize: opts.TrackPageSize,
	}
}

// CurrentUser retrieves the authenticated user's profile.
func (c *Catalog) CurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.gw.Get(ctx, c.baseURL+"/me")
	if err != nil {
		return nil, err
	}

	var user User
	if err := resp.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Playlists returns a lazy paginator over the user's playlists in upstream
// order.
func (c *Catalog) Playlists() *Paginator[SimplePlaylist] {
	first := fmt.Sprintf("%s/me/playlists?limit=%d", c.baseURL, c.listPageSize)
	return NewPaginator[SimplePlaylist](c.gw, c.logger, first)
}

// ListPlaylists materializes all of the user's playlists. Search, sort,
// and slicing are the caller's concern.
func (c *Catalog) ListPlaylists(ctx context.Context) ([]models.PlaylistRef, error) {
	var refs []models.PlaylistRef
	err := c.Playlists().Each(ctx, func(p SimplePlaylist) error {
		refs = append(refs, p.Ref())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// GetPlaylist fetches one playlist's metadata.
func (c *Catalog) GetPlaylist(ctx context.Context, id string) (*models.PlaylistRef, error) {
	resp, err := c.gw.Get(ctx, fmt.Sprintf("%s/playlists/%s", c.baseURL, url.PathEscape(id)))
	if err != nil {
		return nil, err
	}

	var playlist SimplePlaylist
	if err := resp.Decode(&playlist); err != nil {
		return nil, err
	}

	ref := playlist.Ref()
	return &ref, nil
}

// PlaylistTracks fetches all track refs of a playlist in upstream order.
// Items whose nested track is null or lacks an id are filtered out.
// progress is reported against the playlist's advertised track total.
func (c *Catalog) PlaylistTracks(ctx context.Context, id string, progress ProgressFunc) ([]models.TrackRef, error) {
	first := fmt.Sprintf("%s/playlists/%s/tracks?offset=0&limit=%d", c.baseURL, url.PathEscape(id), c.trackPageSize)
	pager := NewPaginator[PlaylistItem](c.gw, c.logger, first)

	fetched := 0
	var refs []models.TrackRef
	err := pager.Each(ctx, func(item PlaylistItem) error {
		fetched++
		if progress != nil {
			progress(fetched, pager.Total())
		}
		if item.Track == nil || item.Track.ID == "" {
			return nil
		}
		refs = append(refs, item.Track.Ref())
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched playlist tracks", "playlist", id, "fetched", fetched, "valid", len(refs))
	return refs, nil
}

// EnrichedTracks fetches a playlist's tracks and pipes them through the
// feature enricher, preserving upstream order. fetchProgress reports page
// fetching against the playlist's advertised track total; enrichProgress
// reports enrichment against the number of valid tracks. Either may be nil.
func (c *Catalog) EnrichedTracks(ctx context.Context, id string, fetchProgress, enrichProgress ProgressFunc) ([]models.EnrichedTrack, error) {
	refs, err := c.PlaylistTracks(ctx, id, fetchProgress)
	if err != nil {
		return nil, err
	}
	return c.enricher.Enrich(ctx, refs, enrichProgress)
}
