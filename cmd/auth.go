package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bodywerk/bodywerk/internal/auth"
	"github.com/bodywerk/bodywerk/internal/server"
	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/urfave/cli/v3"
)

// Auth performs the OAuth2 authorization code flow for Spotify.
//
// Starts a local HTTP server, opens the browser for user authorization,
// exchanges the code for tokens, and saves them to the config file.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	config, configPath := r.loadConfig(cmd)
	r.config = config

	spot := &config.Credentials.Spotify
	if spot.ClientID == "" || spot.ClientSecret == "" {
		return fmt.Errorf("%w: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET or fill in config.toml", shared.ErrMissingCredentials)
	}

	redirectURI := spot.RedirectURI
	if redirectURI == "" {
		redirectURI = fmt.Sprintf("http://%s:%d/callback", config.Server.Host, config.Server.Port)
	}

	oauthConfig := auth.NewOAuthConfig(spot.ClientID, spot.ClientSecret, redirectURI)
	state := shared.GenerateID()
	authURL := oauthConfig.AuthCodeURL(state)

	handler := server.NewCallbackHandler(oauthConfig, state)
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		go func() {
			time.Sleep(100 * time.Millisecond)
			if err := shared.OpenBrowser(authURL); err != nil {
				r.logger.Warnf("failed to open browser automatically %v", err)
			}
		}()
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	listenCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	result, err := server.Listen(listenCtx, addr, handler)
	if err != nil {
		if listenCtx.Err() != nil {
			return fmt.Errorf("authorization timed out: %w", listenCtx.Err())
		}
		return err
	}
	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return fmt.Errorf("no token received")
	}

	if err := spot.Update(result.Token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	// Resolve the profile now so publish runs know the playlist owner.
	s, err := r.connect(cmd)
	if err == nil {
		defer s.Close()
		if err := r.resolveUser(ctx, s); err != nil {
			r.logger.Warnf("failed to resolve user profile %v", err)
		} else if err := shared.SaveConfig(configPath, r.config); err != nil {
			r.logger.Warnf("failed to save config %v", err)
		}
	}

	r.logger.Info("authorization complete", "token", shared.TokenTail(result.Token.AccessToken))

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", configPath)
	r.writePlain("You can now use: bodywerk playlists list\n")

	return nil
}

// AuthStatus reports the stored session state without touching the network.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config, configPath := r.loadConfig(cmd)
	spot := config.Credentials.Spotify

	token := spot.Token()
	if token == nil {
		r.writePlain("✗ Not authenticated\n")
		r.writePlain("Run 'bodywerk auth' to sign in.\n")
		return nil
	}

	r.writePlain("✓ Authenticated\n")
	if spot.UserID != "" {
		r.writePlain("User: %s\n", spot.UserID)
	}
	r.writePlain("Access token: %s\n", shared.TokenTail(token.AccessToken))
	if !token.Expiry.IsZero() {
		if token.Expiry.Before(time.Now()) {
			r.writePlain("Expired: %s (will refresh on next use)\n", token.Expiry.Format(time.RFC3339))
		} else {
			r.writePlain("Expires: %s\n", token.Expiry.Format(time.RFC3339))
		}
	}
	r.writePlain("Config: %s\n", configPath)
	return nil
}

// AuthLogout discards stored tokens from the config file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	config, configPath := r.loadConfig(cmd)
	spot := &config.Credentials.Spotify

	if spot.AccessToken == "" && spot.RefreshToken == "" {
		r.writePlain("No stored session.\n")
		return nil
	}

	spot.AccessToken = ""
	spot.RefreshToken = ""
	spot.Expiry = ""
	spot.UserID = ""

	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlain("✓ Signed out\n")
	return nil
}
