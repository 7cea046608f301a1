// Package main provides the Spotify authorization helper for mediad.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/mediad/internal/infra/logger"
)

var (
	app          = kingpin.New("mediad-auth", "Obtain a Spotify refresh token for mediad catalog sources")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
)

const callbackPage = `<!DOCTYPE html>
<html>
<head><title>mediad - Authorization Complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh">
    <h1>Authorization Complete</h1>
    <p>You can close this window and return to the terminal.</p>
</body>
</html>
`

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	closer, err := logger.Init(logger.Config{Output: "stderr", Level: "info"})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", *port)
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithClientID(*clientID),
		spotifyauth.WithClientSecret(*clientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
			spotifyauth.ScopeUserLibraryRead,
		),
	)

	state := uuid.NewString()
	tokens := make(chan *oauth2.Token, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if st := r.FormValue("state"); st != state {
			http.Error(w, "State mismatch", http.StatusForbidden)
			zlog.Warn().Msgf("State mismatch: got=%s", st)
			return
		}
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "Failed to get token", http.StatusForbidden)
			zlog.Error().Msgf("Failed to get token: %v", err)
			return
		}
		fmt.Fprint(w, callbackPage)
		select {
		case tokens <- token:
		default:
		}
	})

	server := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", *port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Msgf("Failed to start callback server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize mediad:")
	fmt.Println()
	fmt.Println(auth.AuthURL(state))
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var token *oauth2.Token
	select {
	case token = <-tokens:
	case <-sigCh:
		zlog.Info().Msg("Authorization cancelled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error().Msgf("Failed to shutdown callback server: %v", err)
	}

	if token == nil {
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("=== Authorization Successful ===")
	fmt.Println()
	fmt.Println("Add this to your mediad config.yaml:")
	fmt.Println()
	fmt.Println("spotify:")
	fmt.Printf("  client_id: %q\n", *clientID)
	fmt.Printf("  refresh_token: %q\n", token.RefreshToken)
	fmt.Println()
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=%q\n", token.RefreshToken)
}
