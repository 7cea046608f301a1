// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/app/notification"
	"github.com/osa030/mediad/internal/app/session"
	"github.com/osa030/mediad/internal/app/session/registry"
	"github.com/osa030/mediad/internal/domain/client"
)

// TransportName is the transport recorded for connections attached over Connect.
const TransportName = "connect"

const (
	SessionServiceName = "mediad.v1.SessionService"

	SessionServiceAttachProcedure         = "/" + SessionServiceName + "/Attach"
	SessionServiceDetachProcedure         = "/" + SessionServiceName + "/Detach"
	SessionServiceGetChildrenProcedure    = "/" + SessionServiceName + "/GetChildren"
	SessionServiceSubscribeProcedure      = "/" + SessionServiceName + "/Subscribe"
	SessionServiceGetStatusProcedure      = "/" + SessionServiceName + "/GetStatus"
	SessionServicePlayProcedure           = "/" + SessionServiceName + "/Play"
	SessionServicePauseProcedure          = "/" + SessionServiceName + "/Pause"
	SessionServiceStopProcedure           = "/" + SessionServiceName + "/Stop"
	SessionServiceSkipNextProcedure       = "/" + SessionServiceName + "/SkipNext"
	SessionServiceSkipPreviousProcedure   = "/" + SessionServiceName + "/SkipPrevious"
	SessionServiceSeekProcedure           = "/" + SessionServiceName + "/Seek"
	SessionServicePlayFromIDProcedure     = "/" + SessionServiceName + "/PlayFromID"
	SessionServicePlayFromSearchProcedure = "/" + SessionServiceName + "/PlayFromSearch"
	SessionServiceStartProcedure          = "/" + SessionServiceName + "/Start"
	SessionServiceEndProcedure            = "/" + SessionServiceName + "/End"
)

// Session is the session coordinator as used by the RPC services.
type Session interface {
	Attach(ctx context.Context, identity client.Identity, transport string) (*client.Connection, error)
	Detach(connectionID string) error
	Connection(connectionID string) (*client.Connection, error)
	Connections() []*client.Connection
	LoadChildren(conn *client.Connection, parentID string) *session.ChildrenResult
	HandleLifecycle(ev session.LifecycleEvent) error

	Play() error
	Pause() error
	Stop() error
	SkipNext() error
	SkipPrevious() error
	Seek(position time.Duration) error
	PlayFromID(id string) error
	PlayFromSearch(query string) error

	Subscribe(ctx context.Context, stream notification.Stream) (notification.Subscription, error)
	Unsubscribe(subscriptionID string)
	Status(ctx context.Context) (session.Snapshot, error)
	Shutdown(ctx context.Context, reason string) error
	Done() <-chan struct{}
}

// SessionService implements the SessionService RPC.
type SessionService struct {
	session Session
}

// NewSessionService creates a new SessionService.
func NewSessionService(s Session) *SessionService {
	return &SessionService{session: s}
}

// NewSessionServiceHandler builds an HTTP handler serving svc. It returns the
// path to mount the handler on.
func NewSessionServiceHandler(svc *SessionService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	mux := http.NewServeMux()

	mux.Handle(SessionServiceAttachProcedure, connect.NewUnaryHandler(SessionServiceAttachProcedure, svc.Attach, opts...))
	mux.Handle(SessionServiceDetachProcedure, connect.NewUnaryHandler(SessionServiceDetachProcedure, svc.Detach, opts...))
	mux.Handle(SessionServiceGetChildrenProcedure, connect.NewUnaryHandler(SessionServiceGetChildrenProcedure, svc.GetChildren, opts...))
	mux.Handle(SessionServiceSubscribeProcedure, connect.NewServerStreamHandler(SessionServiceSubscribeProcedure, svc.Subscribe, opts...))
	mux.Handle(SessionServiceGetStatusProcedure, connect.NewUnaryHandler(SessionServiceGetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(SessionServiceSeekProcedure, connect.NewUnaryHandler(SessionServiceSeekProcedure, svc.Seek, opts...))
	mux.Handle(SessionServicePlayFromIDProcedure, connect.NewUnaryHandler(SessionServicePlayFromIDProcedure, svc.PlayFromID, opts...))
	mux.Handle(SessionServicePlayFromSearchProcedure, connect.NewUnaryHandler(SessionServicePlayFromSearchProcedure, svc.PlayFromSearch, opts...))

	commands := map[string]func() error{
		SessionServicePlayProcedure:         svc.session.Play,
		SessionServicePauseProcedure:        svc.session.Pause,
		SessionServiceStopProcedure:         svc.session.Stop,
		SessionServiceSkipNextProcedure:     svc.session.SkipNext,
		SessionServiceSkipPreviousProcedure: svc.session.SkipPrevious,
		SessionServiceStartProcedure:        func() error { return svc.session.HandleLifecycle(session.ExplicitStart) },
		SessionServiceEndProcedure:          func() error { return svc.session.HandleLifecycle(session.ExplicitStop) },
	}
	for procedure, fn := range commands {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, command(procedure, fn), opts...))
	}

	return "/" + SessionServiceName + "/", mux
}

// Attach records a connection for the caller and returns its browse root.
func (s *SessionService) Attach(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[AttachResponse], error) {
	conn, err := s.session.Attach(ctx, IdentityFromContext(ctx), TransportName)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AttachResponse{
		ConnectionID: conn.ID,
		RootID:       conn.RootID,
		Allowed:      conn.Allowed,
	}), nil
}

// Detach ends a connection.
func (s *SessionService) Detach(
	ctx context.Context,
	req *connect.Request[DetachRequest],
) (*connect.Response[CommandResponse], error) {
	if err := s.session.Detach(req.Msg.ConnectionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CommandResponse{Success: true}), nil
}

// GetChildren lists the children of a browse node. The call waits while the
// catalog is loading.
func (s *SessionService) GetChildren(
	ctx context.Context,
	req *connect.Request[GetChildrenRequest],
) (*connect.Response[GetChildrenResponse], error) {
	conn, err := s.session.Connection(req.Msg.ConnectionID)
	if err != nil {
		return nil, toConnectError(err)
	}

	items, err := s.session.LoadChildren(conn, req.Msg.ParentID).Wait(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewResponse(&GetChildrenResponse{Items: toTracks(items)}), nil
}

// Subscribe attaches the caller for the lifetime of the stream and sends
// session events. The first event carries the connection and its browse root.
func (s *SessionService) Subscribe(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[Event],
) error {
	conn, err := s.session.Attach(ctx, IdentityFromContext(ctx), TransportName)
	if err != nil {
		return toConnectError(err)
	}
	defer func() {
		if err := s.session.Detach(conn.ID); err != nil && !errors.Is(err, session.ErrSessionEnded) {
			zlog.Warn().Msgf("failed to detach subscriber: id=%s error=%v", conn.ID, err)
		}
	}()

	if err := stream.Send(&Event{
		Type:         EventConnected,
		At:           time.Now(),
		ConnectionID: conn.ID,
		RootID:       conn.RootID,
		Allowed:      conn.Allowed,
	}); err != nil {
		return err
	}

	sub, err := s.session.Subscribe(ctx, &eventStreamAdapter{stream: stream})
	if err != nil {
		return toConnectError(err)
	}

	select {
	case <-ctx.Done():
	case <-sub.Done:
	}

	s.session.Unsubscribe(sub.ID)
	// The pump may still be writing; the stream must not outlive the handler.
	<-sub.Done
	return nil
}

// GetStatus returns a snapshot of the session.
func (s *SessionService) GetStatus(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	snapshot, err := s.session.Status(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toStatus(snapshot)), nil
}

// Seek moves the playback position.
func (s *SessionService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[CommandResponse], error) {
	if err := s.session.Seek(time.Duration(req.Msg.PositionMs) * time.Millisecond); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CommandResponse{Success: true}), nil
}

// PlayFromID queues the tracks around a media id and plays it.
func (s *SessionService) PlayFromID(
	ctx context.Context,
	req *connect.Request[PlayFromIDRequest],
) (*connect.Response[CommandResponse], error) {
	if req.Msg.MediaID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("media_id is required"))
	}
	if err := s.session.PlayFromID(req.Msg.MediaID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CommandResponse{Success: true}), nil
}

// PlayFromSearch queues the tracks matching a query and plays the first one.
func (s *SessionService) PlayFromSearch(
	ctx context.Context,
	req *connect.Request[PlayFromSearchRequest],
) (*connect.Response[CommandResponse], error) {
	if err := s.session.PlayFromSearch(req.Msg.Query); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CommandResponse{Success: true}), nil
}

// command adapts a payload-less session command to a unary handler.
// Commands inapplicable to the current state are absorbed by the session and
// still succeed.
func command(procedure string, fn func() error) func(context.Context, *connect.Request[Empty]) (*connect.Response[CommandResponse], error) {
	return func(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[CommandResponse], error) {
		zlog.Debug().Msgf("command received: procedure=%s identity=%s", procedure, IdentityFromContext(ctx))
		if err := fn(); err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(&CommandResponse{Success: true}), nil
	}
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, session.ErrConnectionRefused):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, registry.ErrUnknownConnection):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// eventStreamAdapter adapts connect.ServerStream to notification.Stream.
type eventStreamAdapter struct {
	stream *connect.ServerStream[Event]
}

func (a *eventStreamAdapter) Send(ev notification.Event) error {
	return a.stream.Send(toEvent(ev))
}
