package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/bodywerk/bodywerk/internal/tasks"
	"github.com/bodywerk/bodywerk/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
)

// Sort runs the sort-and-publish pipeline. With --id it runs headless and
// streams progress to the terminal; without an id it opens the interactive
// playlist picker.
func (r *Runner) Sort(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.String("id")

	s, err := r.connect(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := r.resolveUser(ctx, s); err != nil {
		return err
	}

	if playlistID == "" {
		return r.sortInteractive(ctx, cmd, s)
	}
	return r.sortHeadless(ctx, cmd, s, playlistID)
}

func (r *Runner) sortHeadless(ctx context.Context, cmd *cli.Command, s *stack, playlistID string) error {
	opts := tasks.PublishSortedOpts{
		Name:        cmd.String("name"),
		Description: cmd.String("description"),
		Public:      cmd.Bool("public") || r.config.Engine.PublicPlaylists,
	}

	r.logger.Info("starting sort", "playlist", playlistID, "public", opts.Public)
	r.writePlain("Sorting playlist by danceability...\n\n")

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchPlaylist:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.FetchTracks:
				r.writePlain("   %s\n", update.Message)
			case tasks.EnrichTracks:
				r.writePlain("🎛  %s\n", update.Message)
			case tasks.SortTracks:
				r.writePlain("\n🔀 %s\n", update.Message)
			case tasks.CreatePlaylist:
				r.writePlain("📝 %s\n", update.Message)
			case tasks.AppendTracks:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := s.engine.PublishSorted(ctx, playlistID, opts, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		var partial *shared.PartialWriteError
		if errors.As(err, &partial) {
			r.writePlain("\n⚠ Playlist %s was created but only %d of %d tracks were added.\n",
				partial.PlaylistID, partial.Written, partial.Total)
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlain("\n")
	r.writePlainHeader("Playlist Created!")
	r.writePlain("Source: %s (%d tracks)\n", result.Source.Name, result.Source.TrackCount)
	r.writePlain("Created: %s (%d tracks)\n", result.Created.Name, len(result.Tracks))
	r.writePlain("Visibility: %s\n", shared.VisibilityString(result.Created.Public))
	if result.MissingFeatures > 0 {
		r.writePlain("\n%d tracks had no audio analysis and were placed last.\n", result.MissingFeatures)
	}

	return nil
}

func (r *Runner) sortInteractive(ctx context.Context, cmd *cli.Command, s *stack) error {
	// Redirect logs to a file so they don't fight the TUI for the terminal.
	fileLogger, err := shared.NewFileLogger("./tmp/bodywerk-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	public := cmd.Bool("public") || r.config.Engine.PublicPlaylists
	model := ui.NewModel(ctx, s.engine, public)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
