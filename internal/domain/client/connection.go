// Package client provides the Connection domain entity describing one
// attached client of the media session.
package client

import (
	"fmt"
	"time"
)

// Identity identifies the principal behind a connection.
type Identity struct {
	Package string // Package or principal name (e.g. "org.mpris.MediaPlayer2", "mediactl")
	UID     int    // Numeric user id of the caller
}

// String returns "package(uid)".
func (i Identity) String() string {
	if i.Package == "" {
		return fmt.Sprintf("anonymous(%d)", i.UID)
	}
	return fmt.Sprintf("%s(%d)", i.Package, i.UID)
}

// IsAnonymous reports whether no package was presented.
func (i Identity) IsAnonymous() bool {
	return i.Package == ""
}

// Connection is the record kept for an attached client.
// The gatekeeper verdict is computed once at attach time and never changes.
type Connection struct {
	ID         string    // UUID
	Identity   Identity  // Caller identity
	Transport  string    // Transport the client attached through (connect, mpris)
	Allowed    bool      // Gatekeeper verdict
	RootID     string    // Browse root handed to the client
	AttachedAt time.Time // Attach time
}

// NewConnection creates a connection record.
func NewConnection(id string, identity Identity, transport string, allowed bool, rootID string) *Connection {
	return &Connection{
		ID:         id,
		Identity:   identity,
		Transport:  transport,
		Allowed:    allowed,
		RootID:     rootID,
		AttachedAt: time.Now(),
	}
}
