package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Engine      EngineConfig      `toml:"engine"`
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
}

// CredentialsConfig contains Spotify application credentials and the tokens
// saved by the auth command.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and stored tokens.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token,omitempty"`
	RefreshToken string `toml:"refresh_token,omitempty"`
	Expiry       string `toml:"expiry,omitempty"` // RFC 3339
	UserID       string `toml:"user_id,omitempty"`
}

// EngineConfig contains the tuning knobs for the integration engine.
// Zero values fall back to the documented defaults at construction time.
type EngineConfig struct {
	BatchSize           int  `toml:"batch_size"`             // track page size (default 20)
	ListPageSize        int  `toml:"list_page_size"`         // playlist page size (default 50)
	RateLimitDelayMS    int  `toml:"rate_limit_delay_ms"`    // between feature fetches (default 1000)
	AppendChunkSize     int  `toml:"append_chunk_size"`      // URIs per append call (default 100)
	RefreshSkewSec      int  `toml:"refresh_skew_sec"`       // token expiry margin (default 30)
	MaxRateLimitRetries int  `toml:"max_rate_limit_retries"` // 429 budget (default 6)
	Max5xxRetries       int  `toml:"max_5xx_retries"`        // default 3
	MaxNetworkRetries   int  `toml:"max_network_retries"`    // default 3
	RequestTimeoutMS    int  `toml:"request_timeout_ms"`     // default 30000
	PublicPlaylists     bool `toml:"public_playlists"`       // new playlist visibility (default private)
	BatchFeatures       bool `toml:"batch_features"`         // use /audio-features?ids= (default off)
}

// ServerConfig contains OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig contains feature cache database settings.
//
// The default path is ":memory:" so nothing outlives the process.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Secrets are credentials supplied through the environment. They take
// precedence over values in config.toml.
type Secrets struct {
	ClientID      string `envconfig:"SPOTIFY_CLIENT_ID"`
	ClientSecret  string `envconfig:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI   string `envconfig:"SPOTIFY_REDIRECT_URI"`
	SessionSecret string `envconfig:"BODYWERK_SESSION_SECRET"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the
// embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// SaveConfig writes the configuration back to path as TOML.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the
// embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadSecrets reads environment secrets, loading a .env file first when one
// is present, and overlays them onto the config.
func LoadSecrets(config *Config) (*Secrets, error) {
	_ = godotenv.Load()

	var secrets Secrets
	if err := envconfig.Process("", &secrets); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if secrets.ClientID != "" {
		config.Credentials.Spotify.ClientID = secrets.ClientID
	}
	if secrets.ClientSecret != "" {
		config.Credentials.Spotify.ClientSecret = secrets.ClientSecret
	}
	if secrets.RedirectURI != "" {
		config.Credentials.Spotify.RedirectURI = secrets.RedirectURI
	}

	return &secrets, nil
}

// Map converts Spotify credentials to the map shape the spotify client takes.
func (s *SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// Update stores a freshly minted token on the config for persistence.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidArgument)
	}

	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		s.Expiry = token.Expiry.Format(time.RFC3339)
	}
	return nil
}

// Token reconstructs an [oauth2.Token] from stored credentials.
// Returns nil when no token has been saved.
func (s *SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}

	token := &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	if s.Expiry != "" {
		if t, err := time.Parse(time.RFC3339, s.Expiry); err == nil {
			token.Expiry = t
		}
	}
	return token
}
