package ui

import (
	"fmt"
	"strings"

	"github.com/bodywerk/bodywerk/internal/models"
	"github.com/charmbracelet/bubbles/list"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.PlaylistRef] to implement [list.Item].
type playlistItem struct {
	playlist models.PlaylistRef
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d tracks", i.playlist.TrackCount)
	if i.playlist.Owner != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Owner)
	}
	return desc
}

// trackItem wraps [models.EnrichedTrack] to implement [list.Item].
type trackItem struct {
	rank  int
	track models.EnrichedTrack
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string {
	return fmt.Sprintf("%d. %s", i.rank, i.track.Name)
}
func (i trackItem) Description() string {
	desc := strings.Join(i.track.Artists, ", ")
	if i.track.MissingFeatures {
		return fmt.Sprintf("%s • danceability n/a", desc)
	}
	return fmt.Sprintf("%s • danceability %.0f%%", desc, i.track.Danceability*100)
}
