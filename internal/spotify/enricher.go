package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bodywerk/bodywerk/internal/models"
	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// ProgressFunc reports completion of one unit of a long-running fetch.
type ProgressFunc func(current, total int)

// FeatureCache is a best-effort store for scores already fetched during
// this run. Lookup misses and store failures are not fatal.
type FeatureCache interface {
	Lookup(trackID string) (score float64, missing bool, ok bool)
	Store(trackID string, score float64, missing bool) error
}

// Enricher joins track sequences with their audio features. Fetches are
// paced by a rate limiter so the engine stays inside the documented limits
// even on large playlists.
type Enricher struct {
	gw        Requester
	logger    *log.Logger
	baseURL   string
	limiter   *rate.Limiter // per-track pacing
	batch     bool
	batchSize int
	batchWait *rate.Limiter // inter-batch pacing
	cache     FeatureCache
}

// EnricherOptions configures an Enricher.
type EnricherOptions struct {
	Gateway   Requester
	Logger    *log.Logger
	BaseURL   string        // defaults to the public API root
	Delay     time.Duration // between single-track fetches, default 1s
	Batch     bool          // use the batched ids endpoint, default off
	BatchSize int           // ids per batched call, default and max 50
	Cache     FeatureCache  // optional
}

// NewEnricher creates an Enricher with the provided options.
func NewEnricher(opts EnricherOptions) *Enricher {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.BatchSize <= 0 || opts.BatchSize > 50 {
		opts.BatchSize = 50
	}

	return &Enricher{
		gw:        opts.Gateway,
		logger:    opts.Logger,
		baseURL:   opts.BaseURL,
		limiter:   rate.NewLimiter(rate.Every(opts.Delay), 1),
		batch:     opts.Batch,
		batchSize: opts.BatchSize,
		batchWait: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		cache:     opts.Cache,
	}
}

// Enrich joins refs with their danceability scores, preserving input order.
// Refs without an id are dropped; tracks whose feature lookup is rejected
// permanently come back with a zero score and the MissingFeatures flag.
// progress is invoked after each completed track (or batch member).
func (e *Enricher) Enrich(ctx context.Context, refs []models.TrackRef, progress ProgressFunc) ([]models.EnrichedTrack, error) {
	withID := make([]models.TrackRef, 0, len(refs))
	for _, ref := range refs {
		if ref.ID == "" {
			e.logger.Warn("dropping track without id", "name", ref.Name)
			continue
		}
		withID = append(withID, ref)
	}

	if e.batch {
		return e.enrichBatched(ctx, withID, progress)
	}
	return e.enrichSingle(ctx, withID, progress)
}

func (e *Enricher) enrichSingle(ctx context.Context, refs []models.TrackRef, progress ProgressFunc) ([]models.EnrichedTrack, error) {
	out := make([]models.EnrichedTrack, 0, len(refs))

	for _, ref := range refs {
		score, missing, cached := e.lookupCached(ref.ID)
		if !cached {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			var err error
			score, missing, err = e.fetchOne(ctx, ref.ID)
			if err != nil {
				return nil, err
			}
			e.storeCached(ref.ID, score, missing)
		}

		out = append(out, models.EnrichedTrack{
			TrackRef:        ref,
			Danceability:    score,
			MissingFeatures: missing,
		})
		if progress != nil {
			progress(len(out), len(refs))
		}
	}

	return out, nil
}

// fetchOne retrieves features for a single track. Permanent rejections
// (404, and 403 now that the endpoint is deprecated for some client
// categories) downgrade to a missing-features result.
func (e *Enricher) fetchOne(ctx context.Context, trackID string) (score float64, missing bool, err error) {
	resp, err := e.gw.Get(ctx, fmt.Sprintf("%s/audio-features/%s", e.baseURL, url.PathEscape(trackID)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrUpstreamReject) {
			e.logger.Warn("no audio features", "track", trackID, "err", err)
			return 0, true, nil
		}
		return 0, false, err
	}

	var features AudioFeatures
	if err := resp.Decode(&features); err != nil {
		return 0, false, err
	}

	return clamp(features.Danceability), false, nil
}

func (e *Enricher) enrichBatched(ctx context.Context, refs []models.TrackRef, progress ProgressFunc) ([]models.EnrichedTrack, error) {
	out := make([]models.EnrichedTrack, 0, len(refs))

	for start := 0; start < len(refs); start += e.batchSize {
		end := min(start+e.batchSize, len(refs))
		chunk := refs[start:end]

		if err := e.batchWait.Wait(ctx); err != nil {
			return nil, err
		}

		scores, err := e.fetchBatch(ctx, chunk)
		if err != nil {
			return nil, err
		}

		for i, ref := range chunk {
			out = append(out, models.EnrichedTrack{
				TrackRef:        ref,
				Danceability:    scores[i].score,
				MissingFeatures: scores[i].missing,
			})
		}
		if progress != nil {
			progress(len(out), len(refs))
		}
	}

	return out, nil
}

type featureResult struct {
	score   float64
	missing bool
}

// fetchBatch retrieves features for up to 50 tracks in one call. The
// upstream responds with a null entry for unknown tracks.
func (e *Enricher) fetchBatch(ctx context.Context, refs []models.TrackRef) ([]featureResult, error) {
	results := make([]featureResult, len(refs))
	pending := make([]string, 0, len(refs))
	indexByID := make(map[string][]int, len(refs))

	for i, ref := range refs {
		if score, missing, ok := e.lookupCached(ref.ID); ok {
			results[i] = featureResult{score: score, missing: missing}
			continue
		}
		if len(indexByID[ref.ID]) == 0 {
			pending = append(pending, ref.ID)
		}
		indexByID[ref.ID] = append(indexByID[ref.ID], i)
	}

	if len(pending) == 0 {
		return results, nil
	}

	endpoint := fmt.Sprintf("%s/audio-features?ids=%s", e.baseURL, url.QueryEscape(strings.Join(pending, ",")))
	resp, err := e.gw.Get(ctx, endpoint)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrUpstreamReject) {
			e.logger.Warn("no audio features for batch", "size", len(pending), "err", err)
			for _, indices := range indexByID {
				for _, i := range indices {
					results[i] = featureResult{missing: true}
				}
			}
			return results, nil
		}
		return nil, err
	}

	var decoded struct {
		AudioFeatures []*AudioFeatures `json:"audio_features"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return nil, err
	}

	byID := make(map[string]featureResult, len(decoded.AudioFeatures))
	for _, f := range decoded.AudioFeatures {
		if f != nil {
			byID[f.ID] = featureResult{score: clamp(f.Danceability)}
		}
	}

	for id, indices := range indexByID {
		result, found := byID[id]
		if !found {
			result = featureResult{missing: true}
		}
		for _, i := range indices {
			results[i] = result
		}
		e.storeCached(id, result.score, result.missing)
	}

	return results, nil
}

func (e *Enricher) lookupCached(trackID string) (float64, bool, bool) {
	if e.cache == nil {
		return 0, false, false
	}
	return e.cache.Lookup(trackID)
}

func (e *Enricher) storeCached(trackID string, score float64, missing bool) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Store(trackID, score, missing); err != nil {
		e.logger.Warn("failed to cache features", "track", trackID, "err", err)
	}
}
