// package repositories provides the persistence layer for the run-scoped
// audio feature cache.
//
// The cache avoids re-fetching scores for tracks that appear in multiple
// playlists within one process run. It defaults to an in-memory SQLite
// database, so nothing survives a restart.
package repositories

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/bodywerk/bodywerk/internal/shared"
)

// FeatureRepository stores danceability scores keyed by track id.
// Implements the enricher's FeatureCache contract.
type FeatureRepository struct {
	db *sql.DB
}

// NewFeatureRepository creates a repository over an open cache database.
func NewFeatureRepository(db *sql.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// Lookup returns the cached score for a track id. ok is false on a miss.
func (r *FeatureRepository) Lookup(trackID string) (score float64, missing bool, ok bool) {
	var missingInt int
	err := r.db.QueryRow(
		"SELECT danceability, missing FROM audio_features WHERE track_id = ?", trackID,
	).Scan(&score, &missingInt)
	if err != nil {
		return 0, false, false
	}
	return score, missingInt != 0, true
}

// Store caches the score for a track id. Duplicate stores are silently
// ignored via the UNIQUE constraint.
func (r *FeatureRepository) Store(trackID string, score float64, missing bool) error {
	if trackID == "" {
		return fmt.Errorf("%w: empty track id", shared.ErrInvalidArgument)
	}

	missingInt := 0
	if missing {
		missingInt = 1
	}

	_, err := r.db.Exec(
		"INSERT INTO audio_features (id, track_id, danceability, missing) VALUES (?, ?, ?, ?)",
		shared.GenerateID(), trackID, score, missingInt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil
		}
		return fmt.Errorf("failed to cache features: %w", err)
	}
	return nil
}

// Count returns the number of cached entries.
func (r *FeatureRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM audio_features").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cached features: %w", err)
	}
	return count, nil
}

// Clear removes every cached entry.
func (r *FeatureRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM audio_features"); err != nil {
		return fmt.Errorf("failed to clear feature cache: %w", err)
	}
	return nil
}

// Open opens and migrates the cache database described by the config.
func Open(cfg shared.DatabaseConfig) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	// Each pool connection to :memory: is a distinct empty database, so
	// the migrated schema is only visible on a single shared connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate feature cache: %w", err)
	}
	return db, nil
}
