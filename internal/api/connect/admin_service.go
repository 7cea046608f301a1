package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
)

const (
	AdminServiceName = "mediad.v1.AdminService"

	AdminServiceGetStatusProcedure   = "/" + AdminServiceName + "/GetStatus"
	AdminServiceListClientsProcedure = "/" + AdminServiceName + "/ListClients"
	AdminServicePauseProcedure       = "/" + AdminServiceName + "/Pause"
	AdminServiceShutdownProcedure    = "/" + AdminServiceName + "/Shutdown"
)

// AdminService implements the AdminService RPC.
type AdminService struct {
	session Session
}

// NewAdminService creates a new AdminService.
func NewAdminService(s Session) *AdminService {
	return &AdminService{session: s}
}

// NewAdminServiceHandler builds an HTTP handler serving svc. It returns the
// path to mount the handler on.
func NewAdminServiceHandler(svc *AdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	mux := http.NewServeMux()

	mux.Handle(AdminServiceGetStatusProcedure, connect.NewUnaryHandler(AdminServiceGetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(AdminServiceListClientsProcedure, connect.NewUnaryHandler(AdminServiceListClientsProcedure, svc.ListClients, opts...))
	mux.Handle(AdminServicePauseProcedure, connect.NewUnaryHandler(AdminServicePauseProcedure, svc.Pause, opts...))
	mux.Handle(AdminServiceShutdownProcedure, connect.NewUnaryHandler(AdminServiceShutdownProcedure, svc.Shutdown, opts...))

	return "/" + AdminServiceName + "/", mux
}

// GetStatus returns the current session status.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StatusResponse], error) {
	snapshot, err := s.session.Status(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toStatus(snapshot)), nil
}

// ListClients lists attached clients.
func (s *AdminService) ListClients(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListClientsResponse], error) {
	conns := s.session.Connections()
	resp := &ListClientsResponse{Clients: make([]ClientInfo, 0, len(conns))}
	for _, c := range conns {
		resp.Clients = append(resp.Clients, toClientInfo(c))
	}
	return connect.NewResponse(resp), nil
}

// Pause pauses playback.
func (s *AdminService) Pause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[CommandResponse], error) {
	if err := s.session.Pause(); err != nil {
		return connect.NewResponse(&CommandResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&CommandResponse{
		Success: true,
		Message: "Playback paused",
	}), nil
}

// Shutdown tears the session down.
func (s *AdminService) Shutdown(
	ctx context.Context,
	req *connect.Request[ShutdownRequest],
) (*connect.Response[CommandResponse], error) {
	reason := req.Msg.Reason
	if reason == "" {
		reason = "admin shutdown"
	}
	zlog.Info().Msgf("shutdown requested by admin: reason=%s", reason)

	if err := s.session.Shutdown(ctx, reason); err != nil {
		return connect.NewResponse(&CommandResponse{
			Success: false,
			Message: err.Error(),
		}), nil
	}

	return connect.NewResponse(&CommandResponse{
		Success: true,
		Message: "Session ended",
	}), nil
}
