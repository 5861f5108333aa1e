package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bodywerk/bodywerk/internal/auth"
	"github.com/bodywerk/bodywerk/internal/gateway"
	"github.com/bodywerk/bodywerk/internal/repositories"
	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/bodywerk/bodywerk/internal/spotify"
	"github.com/bodywerk/bodywerk/internal/tasks"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, sortCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger, used when the TUI takes over
// the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// loadConfig resolves the configuration for a command invocation: the
// config file named by --config when present, otherwise defaults, with
// environment secrets layered on top in both cases.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, string) {
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = "config.toml"
	}

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if loaded, err := shared.LoadConfig(configPath); err == nil {
			config = loaded
		} else {
			r.logger.Warnf("failed to load config, using defaults %v", err)
		}
	}
	if config == nil {
		config = shared.DefaultConfig()
	}

	if _, err := shared.LoadSecrets(config); err != nil {
		r.logger.Warnf("failed to read environment secrets %v", err)
	}

	return config, configPath
}

// stack bundles the wired engine collaborators for one command run.
type stack struct {
	manager   *auth.Manager
	catalog   *spotify.Catalog
	publisher *spotify.Publisher
	engine    *tasks.SortEngine
	db        *sql.DB
}

func (s *stack) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// connect builds the full pipeline from saved credentials: token manager,
// gateway, feature cache, catalog, publisher, and engine. Fails with
// [shared.ErrNotAuthenticated] when no token has been stored yet.
func (r *Runner) connect(cmd *cli.Command) (*stack, error) {
	config, configPath := r.loadConfig(cmd)
	r.config = config

	spot := &config.Credentials.Spotify
	if spot.ClientID == "" || spot.ClientSecret == "" {
		return nil, fmt.Errorf("%w: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET or fill in config.toml", shared.ErrMissingCredentials)
	}

	token := spot.Token()
	if token == nil || token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: run 'bodywerk auth' first", shared.ErrNotAuthenticated)
	}

	manager, err := auth.NewManager(auth.ManagerOptions{
		ClientID:     spot.ClientID,
		ClientSecret: spot.ClientSecret,
		Client:       r.httpClient,
		Logger:       r.logger,
		RefreshSkew:  time.Duration(config.Engine.RefreshSkewSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := manager.Bootstrap(token, spot.UserID, auth.Scopes); err != nil {
		return nil, err
	}

	manager.SetRefreshCallback(func(cred auth.Credential) {
		spot.AccessToken = cred.AccessToken
		spot.RefreshToken = cred.RefreshToken
		spot.Expiry = cred.Expiry.Format(time.RFC3339)
		if err := shared.SaveConfig(configPath, config); err != nil {
			r.logger.Warnf("failed to persist rotated token %v", err)
		}
	})

	gw := gateway.New(gateway.Options{
		Client:              r.httpClient,
		Tokens:              manager,
		Logger:              r.logger,
		MaxRateLimitRetries: config.Engine.MaxRateLimitRetries,
		Max5xxRetries:       config.Engine.Max5xxRetries,
		MaxNetworkRetries:   config.Engine.MaxNetworkRetries,
		RequestTimeout:      time.Duration(config.Engine.RequestTimeoutMS) * time.Millisecond,
	})

	db, err := repositories.Open(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature cache: %w", err)
	}
	repo := repositories.NewFeatureRepository(db)

	enricher := spotify.NewEnricher(spotify.EnricherOptions{
		Gateway: gw,
		Logger:  r.logger,
		Delay:   time.Duration(config.Engine.RateLimitDelayMS) * time.Millisecond,
		Batch:   config.Engine.BatchFeatures,
		Cache:   repo,
	})

	catalog := spotify.NewCatalog(spotify.CatalogOptions{
		Gateway:       gw,
		Enricher:      enricher,
		Logger:        r.logger,
		ListPageSize:  config.Engine.ListPageSize,
		TrackPageSize: config.Engine.BatchSize,
	})

	publisher := spotify.NewPublisher(spotify.PublisherOptions{
		Gateway:   gw,
		Logger:    r.logger,
		ChunkSize: config.Engine.AppendChunkSize,
	})

	return &stack{
		manager:   manager,
		catalog:   catalog,
		publisher: publisher,
		engine:    tasks.NewSortEngine(catalog, publisher, manager),
		db:        db,
	}, nil
}

// resolveUser makes sure the manager knows the playlist owner's id,
// fetching the profile when the saved config predates user tracking.
func (r *Runner) resolveUser(ctx context.Context, s *stack) error {
	if s.manager.UserID() != "" {
		return nil
	}
	user, err := s.catalog.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve current user: %w", err)
	}
	s.manager.SetUserID(user.ID)
	r.config.Credentials.Spotify.UserID = user.ID
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
