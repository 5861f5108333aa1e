// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for danceability sorting:
//  1. [PlaylistListView] : Browse and select Spotify playlists
//  2. [ConfirmView] : Confirm the sort-and-publish run
//  3. [SortView] : Monitor real-time pipeline progress
//  4. [ResultView] : Display the created playlist and ranked tracks
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the SortEngine, providing non-blocking
// status reporting while the pipeline runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual
// help displayed via charmbracelet/bubbles/help.
package ui
