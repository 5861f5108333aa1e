package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bodywerk/bodywerk/internal/formatter"
	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistsList lists the authenticated user's playlists.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	s, err := r.connect(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Infof("listing playlists with limit %v", limit)

	playlists, err := s.engine.ListPlaylists(ctx)
	if err != nil {
		return err
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		return r.writeJSON(playlists, pretty)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Owner != "" {
			r.writePlain("   Owner: %s\n", p.Owner)
		}
		r.writePlain("   Visibility: %s\n", shared.VisibilityString(p.Public))
		r.writePlain("\n")
	}

	return nil
}

// PlaylistsShow fetches a playlist, enriches each track with its
// danceability score, and renders the listing in the requested format.
func (r *Runner) PlaylistsShow(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.String("id")
	format := strings.ToLower(cmd.String("format"))
	outputFile := cmd.String("output")

	if playlistID == "" {
		return fmt.Errorf("%w: --id flag is required", shared.ErrMissingArgument)
	}

	s, err := r.connect(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Infof("showing playlist %v", playlistID)

	playlist, err := s.engine.GetPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}

	tracks, err := s.engine.EnrichedTracks(ctx, playlistID, nil)
	if err != nil {
		return err
	}

	listing := &formatter.Listing{Playlist: *playlist, Tracks: tracks}

	if format == "json" {
		return r.writeJSON(listing, true)
	}

	rendered, err := formatter.Render(listing, format)
	if err != nil {
		return err
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, rendered, 0644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		r.writePlain("✓ Playlist written to %s\n", outputFile)
		r.writePlain("  Playlist: %s\n", playlist.Name)
		r.writePlain("  Tracks: %d\n", len(tracks))
		return nil
	}

	if _, err := r.output.Write(rendered); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
