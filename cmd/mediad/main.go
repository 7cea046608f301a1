// Package main provides the mediad server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/mediad/internal/api/connect"
	"github.com/osa030/mediad/internal/api/mpris"
	"github.com/osa030/mediad/internal/app/catalog"
	"github.com/osa030/mediad/internal/app/catalog/provider"
	"github.com/osa030/mediad/internal/app/gatekeeper"
	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/app/session"
	"github.com/osa030/mediad/internal/infra/audio"
	"github.com/osa030/mediad/internal/infra/config"
	"github.com/osa030/mediad/internal/infra/desktop"
	"github.com/osa030/mediad/internal/infra/lastfm"
	"github.com/osa030/mediad/internal/infra/librarydb"
	"github.com/osa030/mediad/internal/infra/logger"
	"github.com/osa030/mediad/internal/infra/spotify"
)

var (
	app        = kingpin.New("mediad", "mediad media session server")
	configPath = app.Flag("config", "Path to config file").Default(config.DefaultPath()).String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listRulesCmd = app.Command("list-rules", "List available gatekeeper rules and exit")

	scanCmd  = app.Command("scan", "Index a music directory into the library database")
	scanDir  = scanCmd.Arg("dir", "Directory to scan").Required().ExistingDir()
	scanDB   = scanCmd.Flag("db", "Library database path (default: XDG data dir)").String()
	scanExts = scanCmd.Flag("ext", "File extension to index (repeatable)").Strings()
)

func init() {
	app.Command("serve", "Start the server (default)").Default()
}

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listRulesCmd.FullCommand() {
		printRules()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	if command == scanCmd.FullCommand() {
		if err := scan(*scanDir, *scanDB, *scanExts); err != nil {
			zlog.Error().Msgf("Scan failed: %v", err)
			os.Exit(1)
		}
		return
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	library, err := newLibrary(ctx, cfg)
	if err != nil {
		return err
	}

	gk, err := newGatekeeper(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid gatekeeper config")
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}

	notifier := desktop.Notifier(desktop.Noop{})
	if cfg.Desktop.Notifications {
		notifier, err = desktop.NewNotifier(desktop.Config{
			AppName: cfg.Desktop.Identity,
			Timeout: time.Duration(cfg.Desktop.NotificationTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			zlog.Warn().Msgf("Desktop notifications disabled: %v", err)
			notifier = desktop.Noop{}
		}
	}
	// Teardown hides the notification, so the notifier outlives the session.
	defer notifier.Close()

	coordinator := session.NewCoordinator(library, backend, gk, notifier, session.Options{
		StopDelay:        cfg.StopDelay(),
		LoadTimeout:      cfg.LoadTimeout(),
		SubscriberBuffer: cfg.Session.SubscriberBuffer,
	})
	if err := coordinator.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	if cfg.Desktop.MPRIS {
		adapter, err := mpris.New(cfg.Desktop.Identity, coordinator)
		if err != nil {
			zlog.Warn().Msgf("MPRIS disabled: %v", err)
		} else {
			defer adapter.Close()
		}
	}

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewSessionServiceHandler(
		apiconnect.NewSessionService(coordinator),
		connect.WithInterceptors(apiconnect.NewIdentityInterceptor()),
	))
	mux.Handle(apiconnect.NewAdminServiceHandler(
		apiconnect.NewAdminService(coordinator),
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Server.AdminToken)),
	))
	if cfg.Server.AdminToken == "" {
		zlog.Warn().Msg("No admin token configured, admin service will refuse all calls")
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received shutdown signal: %s", sig)
	case <-coordinator.Done():
		zlog.Info().Msgf("Session ended, shutting down: reason=%s", coordinator.TeardownReason())
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tear the session down first so subscription streams end before the
	// server waits on them.
	if err := coordinator.Shutdown(shutdownCtx, "server shutdown"); err != nil && !errors.Is(err, session.ErrSessionEnded) {
		zlog.Error().Msgf("Failed to stop session: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// newLibrary builds the catalog from the configured sources.
func newLibrary(ctx context.Context, cfg *config.Config) (*catalog.Library, error) {
	var deps provider.Deps

	if cfg.UsesSource(config.SourceSpotify) || cfg.UsesSource(config.SourceLastFm) {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:          cfg.Spotify.ClientID,
			ClientSecret:      cfg.Spotify.ClientSecret,
			RefreshToken:      cfg.Spotify.RefreshToken,
			Market:            cfg.Spotify.Market,
			RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		deps.Spotify = spotifyClient
	}

	if cfg.LastFm.APIKey != "" {
		lastfmClient, err := lastfm.New(lastfm.Config{APIKey: cfg.LastFm.APIKey})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Last.fm client")
		}
		deps.LastFm = lastfmClient
		deps.Tagger = lastfmClient
	}

	chain, err := provider.NewChainFromConfig(cfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create catalog providers")
	}
	return catalog.NewLibrary(chain, cfg.Session.GenresTitle), nil
}

func newGatekeeper(cfg *config.Config) (*gatekeeper.Chain, error) {
	specs := make([]gatekeeper.Spec, len(cfg.Gatekeeper.Rules))
	for i, r := range cfg.Gatekeeper.Rules {
		specs[i] = gatekeeper.Spec{Type: r.Type, Settings: r.Settings}
	}
	return gatekeeper.Build(!cfg.Gatekeeper.DenyByDefault, specs)
}

func newBackend(cfg *config.Config) (playback.Backend, error) {
	switch cfg.Playback.Backend {
	case config.BackendSpeaker:
		zlog.Info().Msg("Using speaker playback backend")
		return audio.NewSpeaker(audio.SpeakerConfig{}), nil
	case config.BackendClock, "":
		zlog.Info().Msg("Using clock playback backend")
		return audio.NewClock(audio.ClockConfig{
			BufferDelay:  time.Duration(cfg.Playback.BufferDelayMs) * time.Millisecond,
			DefaultTrack: time.Duration(cfg.Playback.DefaultTrackMs) * time.Millisecond,
		}), nil
	default:
		return nil, errors.Newf("unknown playback backend: %s", cfg.Playback.Backend)
	}
}

// scan indexes dir into the library database.
func scan(dir, dbPath string, exts []string) error {
	if dbPath == "" {
		var err error
		if dbPath, err = librarydb.DefaultPath(); err != nil {
			return err
		}
	}
	if len(exts) == 0 {
		exts = provider.DefaultExtensions
	}

	ctx := context.Background()
	started := time.Now()

	tracks, err := provider.ScanDirectory(ctx, dir, exts)
	if err != nil {
		return err
	}

	db, err := librarydb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ReplaceTracks(ctx, tracks); err != nil {
		return err
	}

	var total time.Duration
	for _, t := range tracks {
		total += t.Duration
	}

	size := "unknown size"
	if info, err := os.Stat(dbPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}

	fmt.Printf("Indexed %s tracks (%s of audio) into %s (%s) in %s\n",
		humanize.Comma(int64(len(tracks))),
		total.Round(time.Second),
		dbPath,
		size,
		time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// printRules prints the available gatekeeper rules.
func printRules() {
	registered := gatekeeper.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Gatekeeper Rules:")
	for _, name := range names {
		r := registered[name]()
		fmt.Printf("  %-20s - %s\n", r.Name(), r.Description())
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes.
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
