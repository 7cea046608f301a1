//go:build linux

package desktop

import (
	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/domain/track"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = "/org/freedesktop/Notifications"
	dbusNotifyInterface = "org.freedesktop.Notifications"
)

// dbusNotifier sends notifications via D-Bus. Calls run on a worker
// goroutine so a slow notification daemon never blocks the caller.
type dbusNotifier struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	config Config
	jobs   chan func()
	done   chan struct{}

	id uint32 // Owned by the worker
}

// NewNotifier creates a notifier backed by the session bus.
// Returns a no-op notifier if D-Bus is unavailable.
func NewNotifier(config Config) (Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		zlog.Warn().Msgf("desktop: session bus unavailable, notifications disabled: %v", err)
		return Noop{}, nil
	}

	if config.AppName == "" {
		config.AppName = "mediad"
	}
	n := &dbusNotifier{
		conn:   conn,
		obj:    conn.Object(dbusNotifyDest, dbusNotifyPath),
		config: config,
		jobs:   make(chan func(), 16),
		done:   make(chan struct{}),
	}
	go n.run()
	return n, nil
}

func (n *dbusNotifier) run() {
	defer close(n.done)
	for job := range n.jobs {
		job()
	}
}

func (n *dbusNotifier) submit(job func()) {
	select {
	case n.jobs <- job:
	default:
		zlog.Warn().Msg("desktop: notification queue full, dropping update")
	}
}

// Show shows or replaces the now-playing notification.
func (n *dbusNotifier) Show(t track.Track) {
	summary, body := describe(t)
	n.submit(func() {
		hints := map[string]dbus.Variant{
			"desktop-entry": dbus.MakeVariant(n.config.AppName),
			"transient":     dbus.MakeVariant(true),
		}
		timeout := int32(n.config.Timeout.Milliseconds())

		// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
		call := n.obj.Call(dbusNotifyInterface+".Notify", 0,
			n.config.AppName, n.id, t.ArtURL, summary, body, []string{}, hints, timeout)
		if call.Err != nil {
			zlog.Warn().Msgf("desktop: notify failed: %v", call.Err)
			return
		}
		if err := call.Store(&n.id); err != nil {
			zlog.Warn().Msgf("desktop: notify reply: %v", err)
		}
	})
}

// Hide closes the notification, if one is shown.
func (n *dbusNotifier) Hide() {
	n.submit(func() {
		if n.id == 0 {
			return
		}
		if call := n.obj.Call(dbusNotifyInterface+".CloseNotification", 0, n.id); call.Err != nil {
			zlog.Warn().Msgf("desktop: close notification failed: %v", call.Err)
		}
		n.id = 0
	})
}

// Close drains pending updates and releases the bus connection.
func (n *dbusNotifier) Close() error {
	close(n.jobs)
	<-n.done
	return errors.Wrap(n.conn.Close(), "failed to close session bus")
}
