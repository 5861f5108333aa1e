// package tasks implements the sort-and-publish pipeline on top of the
// playlist catalog.
//
// The core abstraction is [SortEngine], which fetches a playlist's tracks
// enriched with danceability scores, sorts them, and publishes a derived
// playlist. Operations emit progress updates via channels for non-blocking
// status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"sort"

	"github.com/bodywerk/bodywerk/internal/models"
	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/bodywerk/bodywerk/internal/spotify"
)

// UserResolver supplies the authenticated user's id for playlist creation.
// Implemented by the token manager.
type UserResolver interface {
	UserID() string
}

// SortEngine orchestrates the read-enrich-sort-write pipeline.
type SortEngine struct {
	catalog   *spotify.Catalog
	publisher *spotify.Publisher
	user      UserResolver
}

// SortedPublishResult contains all data from a publish run.
type SortedPublishResult struct {
	Source          *models.PlaylistRef    // Source playlist metadata
	Created         *models.PlaylistRef    // Newly created playlist
	Tracks          []models.EnrichedTrack // Tracks in published order
	MissingFeatures int                    // Tracks that had no feature data
}

// NewSortEngine creates a SortEngine with the provided collaborators.
func NewSortEngine(catalog *spotify.Catalog, publisher *spotify.Publisher, user UserResolver) *SortEngine {
	return &SortEngine{
		catalog:   catalog,
		publisher: publisher,
		user:      user,
	}
}

// sendProgress sends a progress update through the channel without
// blocking. A full or nil channel drops the update rather than stalling
// the pipeline.
func (e *SortEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ListPlaylists returns the authenticated user's playlists in upstream
// order.
func (e *SortEngine) ListPlaylists(ctx context.Context) ([]models.PlaylistRef, error) {
	return e.catalog.ListPlaylists(ctx)
}

// GetPlaylist returns one playlist's metadata.
func (e *SortEngine) GetPlaylist(ctx context.Context, id string) (*models.PlaylistRef, error) {
	return e.catalog.GetPlaylist(ctx, id)
}

// EnrichedTracks fetches a playlist's tracks joined with danceability
// scores, reporting progress for both the page fetch and enrichment
// phases.
func (e *SortEngine) EnrichedTracks(ctx context.Context, id string, progress chan<- ProgressUpdate) ([]models.EnrichedTrack, error) {
	e.sendProgress(progress, fetchPlaylistUpdate(id))

	ref, err := e.catalog.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	e.sendProgress(progress, foundPlaylistUpdate(ref))

	tracks, err := e.catalog.EnrichedTracks(ctx, id,
		func(current, total int) {
			e.sendProgress(progress, fetchTracksUpdate(current, total))
		},
		func(current, total int) {
			e.sendProgress(progress, enrichTracksUpdate(current, total))
		},
	)
	if err != nil {
		return nil, err
	}

	return tracks, nil
}

// SortByDanceability returns the tracks in descending danceability order.
// The sort is stable: ties keep their upstream playlist order.
func SortByDanceability(tracks []models.EnrichedTrack) []models.EnrichedTrack {
	sorted := append([]models.EnrichedTrack(nil), tracks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Danceability > sorted[j].Danceability
	})
	return sorted
}

// PublishSortedOpts configures a publish run. Zero values derive the name
// and description from the source playlist.
type PublishSortedOpts struct {
	Name        string
	Description string
	Public      bool
}

// PublishSorted runs the full pipeline for one playlist: fetch, enrich,
// stable sort by descending danceability, create the derived playlist, and
// append the tracks in sorted order.
//
// A failure after creation surfaces as [shared.PartialWriteError]; the
// partially filled playlist is left in place as the resumption point.
func (e *SortEngine) PublishSorted(ctx context.Context, id string, opts PublishSortedOpts, progress chan<- ProgressUpdate) (*SortedPublishResult, error) {
	e.sendProgress(progress, fetchPlaylistUpdate(id))
	source, err := e.catalog.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	e.sendProgress(progress, foundPlaylistUpdate(source))

	tracks, err := e.catalog.EnrichedTracks(ctx, id,
		func(current, total int) {
			e.sendProgress(progress, fetchTracksUpdate(current, total))
		},
		func(current, total int) {
			e.sendProgress(progress, enrichTracksUpdate(current, total))
		},
	)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: playlist %s has no addable tracks", shared.ErrInvalidArgument, id)
	}

	e.sendProgress(progress, sortTracksUpdate(len(tracks)))
	sorted := SortByDanceability(tracks)

	missing := 0
	uris := make([]string, 0, len(sorted))
	for _, track := range sorted {
		uris = append(uris, track.URI)
		if track.MissingFeatures {
			missing++
		}
	}

	userID := e.user.UserID()
	if userID == "" {
		profile, err := e.catalog.CurrentUser(ctx)
		if err != nil {
			return nil, err
		}
		userID = profile.ID
	}

	plan := models.PublishPlan{
		UserID:      userID,
		Name:        opts.Name,
		Description: opts.Description,
		Public:      opts.Public,
		TrackURIs:   uris,
	}
	if plan.Name == "" {
		plan.Name = fmt.Sprintf("%s - Sorted by Danceability", source.Name)
	}
	if plan.Description == "" {
		plan.Description = "Created by Body Werk - Tracks sorted by danceability score"
	}

	e.sendProgress(progress, createPlaylistUpdate(plan.Name))
	created, err := e.publisher.Publish(ctx, plan)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, publishedUpdate(created))
	return &SortedPublishResult{
		Source:          source,
		Created:         created,
		Tracks:          sorted,
		MissingFeatures: missing,
	}, nil
}
