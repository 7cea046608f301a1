// Package main provides the mediactl command line client.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/mediad/internal/api/connect"
	"github.com/osa030/mediad/internal/app/notification"
	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/domain/client"
	"github.com/osa030/mediad/internal/domain/track"
)

var (
	app     = kingpin.New("mediactl", "mediad command line client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set MEDIAD_ADMIN_TOKEN env)").Envar("MEDIAD_ADMIN_TOKEN").String()
	pkg     = app.Flag("package", "Client package name presented to the server").Default("mediactl").String()
	uid     = app.Flag("uid", "Client uid presented to the server").Default(fmt.Sprint(os.Getuid())).Int()
	timeout = app.Flag("timeout", "Timeout for unary calls").Default("10s").Duration()

	statusCmd = app.Command("status", "Show session status")

	browseCmd    = app.Command("browse", "List the children of a browse node")
	browseParent = browseCmd.Arg("id", "Browse node id (default: root)").String()

	playCmd  = app.Command("play", "Start or resume playback")
	pauseCmd = app.Command("pause", "Pause playback")
	stopCmd  = app.Command("stop", "Stop playback")
	nextCmd  = app.Command("next", "Skip to the next track")
	prevCmd  = app.Command("prev", "Skip to the previous track")

	seekCmd      = app.Command("seek", "Seek within the current track")
	seekPosition = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()

	playIDCmd = app.Command("play-id", "Play a media id")
	playID    = playIDCmd.Arg("media-id", "Media id").Required().String()

	searchCmd   = app.Command("search", "Play the results of a search")
	searchQuery = searchCmd.Arg("query", "Search query").Required().Strings()

	watchCmd = app.Command("watch", "Stream session events")

	startCmd = app.Command("start", "Mark the session as explicitly started")
	endCmd   = app.Command("end", "Ask the session to stop once playback is idle")

	clientsCmd    = app.Command("clients", "List attached clients (admin)")
	adminPauseCmd = app.Command("admin-pause", "Pause playback (admin)")

	shutdownCmd    = app.Command("shutdown", "Tear the session down (admin)")
	shutdownReason = shutdownCmd.Arg("reason", "Reason recorded for the teardown").String()
)

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := apiconnect.NewClient(http.DefaultClient, *server, client.Identity{Package: *pkg, UID: *uid}, *token)

	if command == watchCmd.FullCommand() {
		watch(c)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, c)
	case browseCmd.FullCommand():
		err = browse(ctx, c, *browseParent)
	case playCmd.FullCommand():
		err = run(c.Play(ctx), "Playing")
	case pauseCmd.FullCommand():
		err = run(c.Pause(ctx), "Paused")
	case stopCmd.FullCommand():
		err = run(c.Stop(ctx), "Stopped")
	case nextCmd.FullCommand():
		err = run(c.SkipNext(ctx), "Skipped to next track")
	case prevCmd.FullCommand():
		err = run(c.SkipPrevious(ctx), "Skipped to previous track")
	case seekCmd.FullCommand():
		err = run(c.Seek(ctx, *seekPosition), fmt.Sprintf("Seeked to %s", formatPosition(*seekPosition)))
	case playIDCmd.FullCommand():
		err = run(c.PlayFromID(ctx, *playID), fmt.Sprintf("Playing %s", *playID))
	case searchCmd.FullCommand():
		query := strings.Join(*searchQuery, " ")
		err = run(c.PlayFromSearch(ctx, query), fmt.Sprintf("Playing results for %q", query))
	case startCmd.FullCommand():
		err = run(c.Start(ctx), "Session started")
	case endCmd.FullCommand():
		err = run(c.End(ctx), "Session will stop when idle")
	case clientsCmd.FullCommand():
		err = requireToken(func() error { return listClients(ctx, c) })
	case adminPauseCmd.FullCommand():
		err = requireToken(func() error { return adminPause(ctx, c) })
	case shutdownCmd.FullCommand():
		err = requireToken(func() error { return shutdown(ctx, c, *shutdownReason) })
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(err error, success string) error {
	if err != nil {
		return err
	}
	fmt.Println(success)
	return nil
}

func requireToken(fn func() error) error {
	if *token == "" {
		return fmt.Errorf("admin token is required (use --token or MEDIAD_ADMIN_TOKEN env)")
	}
	return fn()
}

func status(ctx context.Context, c *apiconnect.Client) error {
	s, err := c.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== SESSION STATUS ===")
	fmt.Printf("State: %s\n", formatState(s.Playback.State))
	if s.Playback.Error != "" {
		fmt.Printf("Error: %s\n", s.Playback.Error)
	}
	fmt.Printf("Catalog Ready: %v\n", s.CatalogReady)
	fmt.Printf("Started: %v\n", s.Started)
	fmt.Printf("Attached: %d (connections: %d, subscribers: %d)\n", s.Attached, s.Connections, s.Subscribers)
	fmt.Printf("Stop Timer: %s\n", s.Timer)
	if s.PendingTeardown {
		fmt.Println("Pending Teardown: yes")
	}

	if s.NowPlaying != nil {
		fmt.Println("\nNow Playing:")
		printTrack(*s.NowPlaying)
		fmt.Printf("  Position: %s\n", formatPosition(time.Duration(s.Playback.PositionMs)*time.Millisecond))
	} else {
		fmt.Println("\nNothing playing")
	}

	if len(s.Queue) > 0 {
		fmt.Printf("\nQueue: %s (%s items)\n", s.QueueTitle, humanize.Comma(int64(len(s.Queue))))
		for i, t := range s.Queue {
			marker := "  "
			if i == s.QueueIndex {
				marker = "> "
			}
			fmt.Printf("%s%3d. %s\n", marker, i+1, formatTitle(t))
		}
	}
	fmt.Println()
	return nil
}

func browse(ctx context.Context, c *apiconnect.Client, parentID string) error {
	attached, err := c.Attach(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Detach(context.Background(), attached.ConnectionID) }()

	if !attached.Allowed {
		fmt.Println("This client is not allowed to browse the library")
		return nil
	}
	if parentID == "" {
		parentID = attached.RootID
	}

	items, err := c.GetChildren(ctx, attached.ConnectionID, parentID)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s items)\n", rootLabel(parentID), humanize.Comma(int64(len(items))))
	for _, t := range items {
		kind := "♪"
		if t.Browsable {
			kind = "▸"
		}
		fmt.Printf("  %s %-40s %s\n", kind, t.ID, formatTitle(t))
	}
	return nil
}

func listClients(ctx context.Context, c *apiconnect.Client) error {
	clients, err := c.ListClients(ctx)
	if err != nil {
		return err
	}

	if len(clients) == 0 {
		fmt.Println("No clients attached")
		return nil
	}

	fmt.Printf("%-36s  %-30s  %6s  %-8s  %-7s  %s\n", "CONNECTION", "PACKAGE", "UID", "TRANSPORT", "ALLOWED", "ATTACHED")
	for _, cl := range clients {
		fmt.Printf("%-36s  %-30s  %6d  %-8s  %-7v  %s\n",
			cl.ConnectionID, cl.Package, cl.UID, cl.Transport, cl.Allowed, humanize.Time(cl.AttachedAt))
	}
	return nil
}

func adminPause(ctx context.Context, c *apiconnect.Client) error {
	resp, err := c.AdminPause(ctx)
	if err != nil {
		return err
	}
	if resp.Success {
		fmt.Println(resp.Message)
	} else {
		fmt.Printf("Failed: %s\n", resp.Message)
	}
	return nil
}

func shutdown(ctx context.Context, c *apiconnect.Client, reason string) error {
	resp, err := c.Shutdown(ctx, reason)
	if err != nil {
		return err
	}
	if resp.Success {
		fmt.Println(resp.Message)
	} else {
		fmt.Printf("Failed: %s\n", resp.Message)
	}
	return nil
}

func watch(c *apiconnect.Client) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Watching session events. Press Ctrl+C to exit.")

	err := c.Subscribe(ctx, func(ev *apiconnect.Event) error {
		printEvent(ev)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nUnsubscribed")
}

func printEvent(ev *apiconnect.Event) {
	fmt.Printf("\n[Sequence: %d] ", ev.SequenceNo)

	switch ev.Type {
	case apiconnect.EventConnected:
		fmt.Println("=== CONNECTED ===")
		fmt.Printf("  Connection: %s\n", ev.ConnectionID)
		fmt.Printf("  Root: %s (allowed: %v)\n", rootLabel(ev.RootID), ev.Allowed)
	case string(notification.EventMetadataChanged):
		fmt.Println("=== NOW PLAYING ===")
		if ev.Track != nil {
			printTrack(*ev.Track)
		} else {
			fmt.Println("  (cleared)")
		}
	case string(notification.EventQueueChanged):
		fmt.Println("=== QUEUE CHANGED ===")
		fmt.Printf("  Title: %s\n", ev.QueueTitle)
		fmt.Printf("  Items: %s\n", humanize.Comma(int64(len(ev.Queue))))
	case string(notification.EventQueueIndexChanged):
		fmt.Println("=== QUEUE POSITION ===")
		fmt.Printf("  Index: %d\n", ev.QueueIndex)
	case string(notification.EventPlaybackStateChanged):
		fmt.Println("=== PLAYBACK STATE ===")
		if ev.Playback != nil {
			fmt.Printf("  State: %s\n", formatState(ev.Playback.State))
			fmt.Printf("  Position: %s\n", formatPosition(time.Duration(ev.Playback.PositionMs)*time.Millisecond))
			if ev.Playback.Error != "" {
				fmt.Printf("  Error: %s\n", ev.Playback.Error)
			}
		}
	case string(notification.EventSessionEnded):
		fmt.Println("=== SESSION ENDED ===")
		fmt.Printf("  Reason: %s\n", ev.Reason)
	default:
		fmt.Printf("=== UNKNOWN EVENT (%s) ===\n", ev.Type)
	}
}

func printTrack(t apiconnect.Track) {
	fmt.Printf("  ID: %s\n", t.ID)
	fmt.Printf("  Title: %s\n", t.Title)
	if t.Artist != "" {
		fmt.Printf("  Artist: %s\n", t.Artist)
	}
	if t.Album != "" {
		fmt.Printf("  Album: %s\n", t.Album)
	}
	if t.Genre != "" {
		fmt.Printf("  Genre: %s\n", t.Genre)
	}
	if t.DurationMs > 0 {
		fmt.Printf("  Duration: %s\n", formatPosition(time.Duration(t.DurationMs)*time.Millisecond))
	}
}

func formatTitle(t apiconnect.Track) string {
	if t.Artist == "" {
		return t.Title
	}
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

func formatPosition(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func formatState(state string) string {
	switch state {
	case playback.StatePlaying.String():
		return "▶️  Playing"
	case playback.StatePaused.String():
		return "⏸  Paused"
	case playback.StateBuffering.String():
		return "⏳ Buffering"
	case playback.StateStopped.String():
		return "⏹  Stopped"
	case playback.StateSkippingNext.String():
		return "⏭  Skipping to next"
	case playback.StateSkippingPrev.String():
		return "⏮  Skipping to previous"
	case playback.StateError.String():
		return "❌ Error"
	case playback.StateNone.String():
		return "No media"
	default:
		return "❓ Unknown"
	}
}

// rootLabel names the well-known browse roots.
func rootLabel(id string) string {
	switch id {
	case track.RootID:
		return "library"
	case track.EmptyRootID:
		return "empty"
	default:
		return id
	}
}
