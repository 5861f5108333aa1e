package spotify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bodywerk/bodywerk/internal/gateway"
	"github.com/bodywerk/bodywerk/internal/models"
	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/charmbracelet/log"
)

// Publisher creates a playlist and appends tracks in a caller-specified
// order, chunking appends to the upstream limit.
//
// Creation is not idempotent: re-running a plan produces another playlist.
// A failed append leaves the partially filled playlist in place and
// surfaces a [shared.PartialWriteError] carrying the resumption point.
type Publisher struct {
	gw         Requester
	logger     *log.Logger
	baseURL    string
	chunkSize  int
	chunkDelay time.Duration
	sleep      gateway.SleepFunc
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Gateway    Requester
	Logger     *log.Logger
	BaseURL    string
	ChunkSize  int               // URIs per append call, default and max 100
	ChunkDelay time.Duration     // between append calls, default 100ms
	Sleep      gateway.SleepFunc // injectable for tests
}

// NewPublisher creates a Publisher with the provided options.
func NewPublisher(opts PublisherOptions) *Publisher {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.ChunkSize <= 0 || opts.ChunkSize > 100 {
		opts.ChunkSize = 100
	}
	if opts.ChunkDelay <= 0 {
		opts.ChunkDelay = 100 * time.Millisecond
	}
	if opts.Sleep == nil {
		opts.Sleep = gateway.SleepContext
	}

	return &Publisher{
		gw:         opts.Gateway,
		logger:     opts.Logger,
		baseURL:    opts.BaseURL,
		chunkSize:  opts.ChunkSize,
		chunkDelay: opts.ChunkDelay,
		sleep:      opts.Sleep,
	}
}

// Publish consumes a plan: creates the playlist, then appends the plan's
// URIs in order.
func (p *Publisher) Publish(ctx context.Context, plan models.PublishPlan) (*models.PlaylistRef, error) {
	if plan.UserID == "" {
		return nil, fmt.Errorf("%w: plan has no user id", shared.ErrInvalidArgument)
	}
	if plan.Name == "" {
		return nil, fmt.Errorf("%w: plan has no playlist name", shared.ErrInvalidArgument)
	}

	created, err := p.create(ctx, plan)
	if err != nil {
		return nil, err
	}

	if err := p.append(ctx, created.ID, plan.TrackURIs); err != nil {
		return nil, err
	}

	created.TrackCount = len(plan.TrackURIs)
	p.logger.Info("playlist published", "id", created.ID, "name", created.Name, "tracks", created.TrackCount)
	return created, nil
}

func (p *Publisher) create(ctx context.Context, plan models.PublishPlan) (*models.PlaylistRef, error) {
	body := map[string]any{
		"name":        plan.Name,
		"description": plan.Description,
		"public":      plan.Public,
	}

	endpoint := fmt.Sprintf("%s/users/%s/playlists", p.baseURL, url.PathEscape(plan.UserID))
	resp, err := p.gw.Post(ctx, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	var playlist SimplePlaylist
	if err := resp.Decode(&playlist); err != nil {
		return nil, err
	}

	ref := playlist.Ref()
	return &ref, nil
}

// append posts URIs in chunks of at most chunkSize, pausing between chunks.
// On a chunk failure the error reports how many URIs were persisted.
func (p *Publisher) append(ctx context.Context, playlistID string, uris []string) error {
	endpoint := fmt.Sprintf("%s/playlists/%s/tracks", p.baseURL, url.PathEscape(playlistID))

	written := 0
	for start := 0; start < len(uris); start += p.chunkSize {
		if start > 0 {
			if err := p.sleep(ctx, p.chunkDelay); err != nil {
				return &shared.PartialWriteError{PlaylistID: playlistID, Written: written, Total: len(uris), Cause: err}
			}
		}

		end := min(start+p.chunkSize, len(uris))
		chunk := uris[start:end]

		if _, err := p.gw.Post(ctx, endpoint, map[string]any{"uris": chunk}); err != nil {
			return &shared.PartialWriteError{PlaylistID: playlistID, Written: written, Total: len(uris), Cause: err}
		}
		written += len(chunk)
	}

	return nil
}
