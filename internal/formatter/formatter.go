// package formatter renders enriched track listings to CSV, Markdown, and
// plain text for the playlists show command.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/bodywerk/bodywerk/internal/models"
	"github.com/bodywerk/bodywerk/internal/shared"
)

// Listing pairs a playlist with its enriched tracks for export.
type Listing struct {
	Playlist models.PlaylistRef
	Tracks   []models.EnrichedTrack
}

// ToCSV renders a listing as CSV with columns: ID, Title, Artists, Album,
// Danceability, MissingFeatures, PreviewURL.
func ToCSV(listing *Listing) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artists", "Album", "Danceability", "MissingFeatures", "PreviewURL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range listing.Tracks {
		record := []string{
			track.ID,
			track.Name,
			strings.Join(track.Artists, "; "),
			track.Album,
			strconv.FormatFloat(track.Danceability, 'f', 3, 64),
			strconv.FormatBool(track.MissingFeatures),
			track.PreviewURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown renders a listing as a Markdown document.
func ToMarkdown(listing *Listing) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", listing.Playlist.Name))

	if listing.Playlist.CoverURL != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", listing.Playlist.CoverURL))
	}
	if listing.Playlist.Owner != "" {
		buf.WriteString(fmt.Sprintf("**Owner**: %s\n", listing.Playlist.Owner))
	}
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n", len(listing.Tracks)))
	buf.WriteString(fmt.Sprintf("**Visibility**: %s\n\n", shared.VisibilityString(listing.Playlist.Public)))

	buf.WriteString("## Tracks\n\n")
	buf.WriteString("| # | Title | Artists | Danceability |\n")
	buf.WriteString("|---|-------|---------|-------------|\n")
	for i, track := range listing.Tracks {
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n",
			i+1, track.Name, strings.Join(track.Artists, ", "), danceabilityCell(track)))
	}

	return buf.Bytes(), nil
}

// ToText renders a listing as plain text.
func ToText(listing *Listing) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", listing.Playlist.Name))
	if listing.Playlist.Owner != "" {
		buf.WriteString(fmt.Sprintf("Owner: %s\n", listing.Playlist.Owner))
	}
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(listing.Tracks)))

	for i, track := range listing.Tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]\n",
			i+1, strings.Join(track.Artists, ", "), track.Name, danceabilityCell(track)))
	}

	return buf.Bytes(), nil
}

// Render converts a listing to the named format: csv, markdown (md), or
// txt.
func Render(listing *Listing, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "csv":
		return ToCSV(listing)
	case "markdown", "md":
		return ToMarkdown(listing)
	case "txt", "text", "":
		return ToText(listing)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// danceabilityCell renders a score as a percentage, marking tracks whose
// features were unavailable upstream.
func danceabilityCell(track models.EnrichedTrack) string {
	if track.MissingFeatures {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", track.Danceability*100)
}
