//go:build !linux

package desktop

// NewNotifier returns a no-op notifier on non-Linux platforms.
func NewNotifier(_ Config) (Notifier, error) {
	return Noop{}, nil
}
