package spotify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bodywerk/bodywerk/internal/models"
	"github.com/bodywerk/bodywerk/internal/shared"
)

// memoryCache is an in-process FeatureCache for tests.
type memoryCache struct {
	scores   map[string]featureResult
	storeErr error
	stores   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{scores: map[string]featureResult{}}
}

func (c *memoryCache) Lookup(trackID string) (float64, bool, bool) {
	r, ok := c.scores[trackID]
	return r.score, r.missing, ok
}

func (c *memoryCache) Store(trackID string, score float64, missing bool) error {
	c.stores++
	if c.storeErr != nil {
		return c.storeErr
	}
	c.scores[trackID] = featureResult{score: score, missing: missing}
	return nil
}

func refsFor(ids ...string) []models.TrackRef {
	refs := make([]models.TrackRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, models.TrackRef{ID: id, URI: "spotify:track:" + id, Name: "track " + id})
	}
	return refs
}

func featureURL(id string) string {
	return testBaseURL + "/audio-features/" + id
}

func newTestEnricher(gw Requester, cache FeatureCache, batch bool) *Enricher {
	return NewEnricher(EnricherOptions{
		Gateway: gw,
		BaseURL: testBaseURL,
		Delay:   time.Microsecond,
		Batch:   batch,
		Cache:   cache,
	})
}

func TestEnricher(t *testing.T) {
	ctx := context.Background()

	t.Run("Preserves Input Order", func(t *testing.T) {
		gw := newFakeGateway()
		gw.respondJSON(featureURL("t1"), AudioFeatures{ID: "t1", Danceability: 0.9})
		gw.respondJSON(featureURL("t2"), AudioFeatures{ID: "t2", Danceability: 0.1})
		gw.respondJSON(featureURL("t3"), AudioFeatures{ID: "t3", Danceability: 0.5})

		enricher := newTestEnricher(gw, nil, false)
		tracks, err := enricher.Enrich(ctx, refsFor("t1", "t2", "t3"), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(tracks) != 3 {
			t.Fatalf("expected 3 tracks, got %d", len(tracks))
		}
		for i, want := range []float64{0.9, 0.1, 0.5} {
			if tracks[i].Danceability != want {
				t.Errorf("track %d: expected %v, got %v", i, want, tracks[i].Danceability)
			}
		}
	})

	t.Run("Drops Tracks Without ID", func(t *testing.T) {
		gw := newFakeGateway()
		gw.respondJSON(featureURL("t1"), AudioFeatures{ID: "t1", Danceability: 0.4})

		enricher := newTestEnricher(gw, nil, false)
		refs := []models.TrackRef{{Name: "local file"}, {ID: "t1", Name: "real"}}

		tracks, err := enricher.Enrich(ctx, refs, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "t1" {
			t.Errorf("expected only the track with an id, got %+v", tracks)
		}
	})

	t.Run("Missing Features", func(t *testing.T) {
		t.Run("Not Found", func(t *testing.T) {
			gw := newFakeGateway()
			gw.failWith(featureURL("gone"), &shared.UpstreamError{Status: 404, Body: "analysis not found"})

			enricher := newTestEnricher(gw, nil, false)
			tracks, err := enricher.Enrich(ctx, refsFor("gone"), nil)
			if err != nil {
				t.Fatalf("expected downgrade to missing, got %v", err)
			}
			if !tracks[0].MissingFeatures || tracks[0].Danceability != 0 {
				t.Errorf("expected zero score with missing flag, got %+v", tracks[0])
			}
		})

		t.Run("Forbidden", func(t *testing.T) {
			gw := newFakeGateway()
			gw.failWith(featureURL("blocked"), &shared.UpstreamError{Status: 403, Body: "deprecated"})

			enricher := newTestEnricher(gw, nil, false)
			tracks, err := enricher.Enrich(ctx, refsFor("blocked"), nil)
			if err != nil {
				t.Fatalf("expected downgrade to missing, got %v", err)
			}
			if !tracks[0].MissingFeatures {
				t.Errorf("expected missing flag, got %+v", tracks[0])
			}
		})

		t.Run("Transient Errors Propagate", func(t *testing.T) {
			gw := newFakeGateway()
			gw.failWith(featureURL("t1"), shared.ErrRateLimited)

			enricher := newTestEnricher(gw, nil, false)
			if _, err := enricher.Enrich(ctx, refsFor("t1"), nil); !errors.Is(err, shared.ErrRateLimited) {
				t.Errorf("expected ErrRateLimited, got %v", err)
			}
		})
	})

	t.Run("Clamps Scores", func(t *testing.T) {
		gw := newFakeGateway()
		gw.respondJSON(featureURL("hot"), AudioFeatures{ID: "hot", Danceability: 1.7})

		enricher := newTestEnricher(gw, nil, false)
		tracks, err := enricher.Enrich(ctx, refsFor("hot"), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tracks[0].Danceability != 1 {
			t.Errorf("expected clamped score 1, got %v", tracks[0].Danceability)
		}
	})

	t.Run("Reports Progress", func(t *testing.T) {
		gw := newFakeGateway()
		gw.respondJSON(featureURL("t1"), AudioFeatures{ID: "t1"})
		gw.respondJSON(featureURL("t2"), AudioFeatures{ID: "t2"})

		enricher := newTestEnricher(gw, nil, false)
		var steps [][2]int
		_, err := enricher.Enrich(ctx, refsFor("t1", "t2"), func(current, total int) {
			steps = append(steps, [2]int{current, total})
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := [][2]int{{1, 2}, {2, 2}}
		if len(steps) != len(want) {
			t.Fatalf("expected %d progress calls, got %d", len(want), len(steps))
		}
		for i := range want {
			if steps[i] != want[i] {
				t.Errorf("step %d: expected %v, got %v", i, want[i], steps[i])
			}
		}
	})

	t.Run("Cache", func(t *testing.T) {
		t.Run("Hit Skips Fetch", func(t *testing.T) {
			gw := newFakeGateway()
			cache := newMemoryCache()
			cache.scores["t1"] = featureResult{score: 0.66}

			enricher := newTestEnricher(gw, cache, false)
			tracks, err := enricher.Enrich(ctx, refsFor("t1"), nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tracks[0].Danceability != 0.66 {
				t.Errorf("expected cached score, got %v", tracks[0].Danceability)
			}
			if gw.callCount() != 0 {
				t.Errorf("expected no upstream calls, got %d", gw.callCount())
			}
		})

		t.Run("Stores After Fetch", func(t *testing.T) {
			gw := newFakeGateway()
			gw.respondJSON(featureURL("t1"), AudioFeatures{ID: "t1", Danceability: 0.3})
			cache := newMemoryCache()

			enricher := newTestEnricher(gw, cache, false)
			if _, err := enricher.Enrich(ctx, refsFor("t1"), nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if score, _, ok := cache.Lookup("t1"); !ok || score != 0.3 {
				t.Errorf("expected score cached, got %v %v", score, ok)
			}
		})

		t.Run("Store Failure Is Not Fatal", func(t *testing.T) {
			gw := newFakeGateway()
			gw.respondJSON(featureURL("t1"), AudioFeatures{ID: "t1", Danceability: 0.3})
			cache := newMemoryCache()
			cache.storeErr = fmt.Errorf("disk full")

			enricher := newTestEnricher(gw, cache, false)
			tracks, err := enricher.Enrich(ctx, refsFor("t1"), nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tracks[0].Danceability != 0.3 {
				t.Errorf("expected fetched score despite store failure, got %v", tracks[0].Danceability)
			}
		})
	})
}

func TestEnricherBatched(t *testing.T) {
	ctx := context.Background()

	batchURL := func(ids string) string {
		return testBaseURL + "/audio-features?ids=" + ids
	}

	t.Run("Chunks By Batch Size", func(t *testing.T) {
		gw := newFakeGateway()

		var ids []string
		features := make([]*AudioFeatures, 0, 60)
		refs := make([]models.TrackRef, 0, 60)
		for i := 0; i < 60; i++ {
			id := fmt.Sprintf("t%02d", i)
			ids = append(ids, id)
			features = append(features, &AudioFeatures{ID: id, Danceability: float64(i) / 100})
			refs = append(refs, models.TrackRef{ID: id})
		}

		firstIDs, secondIDs := "", ""
		for i, id := range ids[:50] {
			if i > 0 {
				firstIDs += "%2C"
			}
			firstIDs += id
		}
		for i, id := range ids[50:] {
			if i > 0 {
				secondIDs += "%2C"
			}
			secondIDs += id
		}

		gw.respondJSON(batchURL(firstIDs), map[string]any{"audio_features": features[:50]})
		gw.respondJSON(batchURL(secondIDs), map[string]any{"audio_features": features[50:]})

		enricher := newTestEnricher(gw, nil, true)
		tracks, err := enricher.Enrich(ctx, refs, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(tracks) != 60 {
			t.Fatalf("expected 60 tracks, got %d", len(tracks))
		}
		if gw.callCount() != 2 {
			t.Errorf("expected 2 batch calls, got %d", gw.callCount())
		}
		if tracks[59].Danceability != 0.59 {
			t.Errorf("expected last score 0.59, got %v", tracks[59].Danceability)
		}
	})

	t.Run("Null Entries Become Missing", func(t *testing.T) {
		gw := newFakeGateway()
		gw.respondJSON(batchURL("t1%2Ct2"), map[string]any{
			"audio_features": []*AudioFeatures{{ID: "t1", Danceability: 0.8}, nil},
		})

		enricher := newTestEnricher(gw, nil, true)
		tracks, err := enricher.Enrich(ctx, refsFor("t1", "t2"), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if tracks[0].MissingFeatures || tracks[0].Danceability != 0.8 {
			t.Errorf("expected t1 scored, got %+v", tracks[0])
		}
		if !tracks[1].MissingFeatures {
			t.Errorf("expected t2 missing, got %+v", tracks[1])
		}
	})

	t.Run("Rejected Batch Marks All Missing", func(t *testing.T) {
		gw := newFakeGateway()
		gw.failWith(batchURL("t1%2Ct2"), &shared.UpstreamError{Status: 403, Body: "deprecated"})

		enricher := newTestEnricher(gw, nil, true)
		tracks, err := enricher.Enrich(ctx, refsFor("t1", "t2"), nil)
		if err != nil {
			t.Fatalf("expected downgrade, got %v", err)
		}
		for i := range tracks {
			if !tracks[i].MissingFeatures {
				t.Errorf("track %d: expected missing flag", i)
			}
		}
	})
}
