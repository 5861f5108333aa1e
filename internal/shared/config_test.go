package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != ":memory:" {
			t.Errorf("expected database path :memory:, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Engine.BatchSize != 20 {
			t.Errorf("expected batch size 20, got %d", config.Engine.BatchSize)
		}

		if config.Engine.RateLimitDelayMS != 1000 {
			t.Errorf("expected rate limit delay 1000, got %d", config.Engine.RateLimitDelayMS)
		}

		if config.Engine.AppendChunkSize != 100 {
			t.Errorf("expected append chunk size 100, got %d", config.Engine.AppendChunkSize)
		}

		if config.Engine.MaxRateLimitRetries != 6 {
			t.Errorf("expected rate limit retry budget 6, got %d", config.Engine.MaxRateLimitRetries)
		}

		if config.Engine.PublicPlaylists {
			t.Error("expected new playlists private by default")
		}

		if config.Credentials.Spotify.RedirectURI != "http://localhost:8080/callback" {
			t.Errorf("unexpected redirect URI: %s", config.Credentials.Spotify.RedirectURI)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Engine.BatchSize != defaultConfig.Engine.BatchSize {
			t.Error("created config engine settings don't match defaults")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
redirect_uri = "http://localhost:3000/callback"
user_id = "user1"

[engine]
batch_size = 10
rate_limit_delay_ms = 250
batch_features = true

[server]
host = "0.0.0.0"
port = 9090

[database]
path = "/custom/cache.db"
max_open_conns = 4
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("unexpected client id: %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.UserID != "user1" {
			t.Errorf("unexpected user id: %s", config.Credentials.Spotify.UserID)
		}
		if config.Engine.BatchSize != 10 {
			t.Errorf("expected batch size 10, got %d", config.Engine.BatchSize)
		}
		if !config.Engine.BatchFeatures {
			t.Error("expected batch features enabled")
		}
		if config.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", config.Server.Port)
		}
		if config.Database.Path != "/custom/cache.db" {
			t.Errorf("unexpected database path: %s", config.Database.Path)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("LoadConfig Invalid TOML", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("not [valid toml"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("SaveConfig Round Trip", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		config := DefaultConfig()
		config.Credentials.Spotify.ClientID = "saved_id"
		config.Credentials.Spotify.AccessToken = "saved_access"
		config.Credentials.Spotify.RefreshToken = "saved_refresh"
		config.Engine.PublicPlaylists = true

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}

		if loaded.Credentials.Spotify.ClientID != "saved_id" {
			t.Errorf("client id lost in round trip: %s", loaded.Credentials.Spotify.ClientID)
		}
		if loaded.Credentials.Spotify.AccessToken != "saved_access" {
			t.Errorf("access token lost in round trip: %s", loaded.Credentials.Spotify.AccessToken)
		}
		if loaded.Credentials.Spotify.RefreshToken != "saved_refresh" {
			t.Errorf("refresh token lost in round trip: %s", loaded.Credentials.Spotify.RefreshToken)
		}
		if !loaded.Engine.PublicPlaylists {
			t.Error("public playlists flag lost in round trip")
		}
	})

	t.Run("LoadSecrets Overrides Config", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "env_client_id")
		t.Setenv("SPOTIFY_CLIENT_SECRET", "env_secret")
		t.Setenv("SPOTIFY_REDIRECT_URI", "")

		config := DefaultConfig()
		config.Credentials.Spotify.ClientID = "file_client_id"
		config.Credentials.Spotify.RedirectURI = "http://file/callback"

		secrets, err := LoadSecrets(config)
		if err != nil {
			t.Fatalf("failed to load secrets: %v", err)
		}

		if secrets.ClientID != "env_client_id" {
			t.Errorf("unexpected secret client id: %s", secrets.ClientID)
		}
		if config.Credentials.Spotify.ClientID != "env_client_id" {
			t.Errorf("expected env to override file client id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.ClientSecret != "env_secret" {
			t.Errorf("expected env to override client secret, got %s", config.Credentials.Spotify.ClientSecret)
		}
		// Empty env values leave file values alone.
		if config.Credentials.Spotify.RedirectURI != "http://file/callback" {
			t.Errorf("empty env var should not clear redirect URI, got %s", config.Credentials.Spotify.RedirectURI)
		}
	})
}

func TestSpotifyConfig(t *testing.T) {
	t.Run("Update And Token Round Trip", func(t *testing.T) {
		expiry := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		spot := &SpotifyConfig{}

		err := spot.Update(&oauth2.Token{
			AccessToken:  "access1",
			RefreshToken: "refresh1",
			Expiry:       expiry,
		})
		if err != nil {
			t.Fatalf("failed to update: %v", err)
		}

		token := spot.Token()
		if token == nil {
			t.Fatal("expected reconstructed token")
		}
		if token.AccessToken != "access1" || token.RefreshToken != "refresh1" {
			t.Errorf("unexpected token: %+v", token)
		}
		if !token.Expiry.Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, token.Expiry)
		}
	})

	t.Run("Update Keeps Refresh Token", func(t *testing.T) {
		spot := &SpotifyConfig{RefreshToken: "original_refresh"}

		if err := spot.Update(&oauth2.Token{AccessToken: "access2"}); err != nil {
			t.Fatalf("failed to update: %v", err)
		}

		if spot.RefreshToken != "original_refresh" {
			t.Errorf("refresh token should survive rotation, got %s", spot.RefreshToken)
		}
		if spot.AccessToken != "access2" {
			t.Errorf("unexpected access token: %s", spot.AccessToken)
		}
	})

	t.Run("Update Rejects Empty Token", func(t *testing.T) {
		spot := &SpotifyConfig{}

		if err := spot.Update(nil); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for nil token, got %v", err)
		}
		if err := spot.Update(&oauth2.Token{}); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty token, got %v", err)
		}
	})

	t.Run("Token Returns Nil When Unset", func(t *testing.T) {
		spot := &SpotifyConfig{ClientID: "id_only"}
		if token := spot.Token(); token != nil {
			t.Errorf("expected nil token, got %+v", token)
		}
	})

	t.Run("Token Ignores Bad Expiry", func(t *testing.T) {
		spot := &SpotifyConfig{AccessToken: "access", Expiry: "garbage"}
		token := spot.Token()
		if token == nil {
			t.Fatal("expected token despite bad expiry")
		}
		if !token.Expiry.IsZero() {
			t.Errorf("expected zero expiry, got %v", token.Expiry)
		}
	})

	t.Run("Map", func(t *testing.T) {
		spot := &SpotifyConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "uri"}
		m := spot.Map()
		if m["client_id"] != "id" || m["client_secret"] != "secret" || m["redirect_uri"] != "uri" {
			t.Errorf("unexpected map: %+v", m)
		}
	})
}
