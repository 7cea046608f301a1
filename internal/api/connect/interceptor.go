package connect

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/mediad/internal/domain/client"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
	// ClientPackageHeader carries the caller's package name.
	ClientPackageHeader = "X-Client-Package"
	// ClientUIDHeader carries the caller's numeric user id.
	ClientUIDHeader = "X-Client-Uid"
)

type identityKey struct{}

// IdentityFromContext returns the caller identity stored by the identity interceptor.
func IdentityFromContext(ctx context.Context) client.Identity {
	identity, _ := ctx.Value(identityKey{}).(client.Identity)
	return identity
}

func withIdentity(ctx context.Context, identity client.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func parseIdentity(header http.Header) (client.Identity, error) {
	identity := client.Identity{Package: header.Get(ClientPackageHeader), UID: -1}
	if v := header.Get(ClientUIDHeader); v != "" {
		uid, err := strconv.Atoi(v)
		if err != nil || uid < 0 {
			return client.Identity{}, connect.NewError(connect.CodeInvalidArgument, errors.Newf("invalid %s header: %q", ClientUIDHeader, v))
		}
		identity.UID = uid
	}
	return identity, nil
}

func setIdentity(header http.Header, identity client.Identity) {
	if identity.Package != "" {
		header.Set(ClientPackageHeader, identity.Package)
	}
	if identity.UID >= 0 {
		header.Set(ClientUIDHeader, strconv.Itoa(identity.UID))
	}
}

// identityInterceptor carries the caller identity in request headers. On the
// handler side it stores the parsed identity in the context; on the client
// side it sets the headers.
type identityInterceptor struct {
	identity client.Identity // Client side only
}

// NewIdentityInterceptor creates the handler-side identity interceptor.
func NewIdentityInterceptor() connect.Interceptor {
	return &identityInterceptor{}
}

// NewClientIdentityInterceptor creates an interceptor that presents identity.
func NewClientIdentityInterceptor(identity client.Identity) connect.Interceptor {
	return &identityInterceptor{identity: identity}
}

func (i *identityInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			setIdentity(req.Header(), i.identity)
			return next(ctx, req)
		}
		identity, err := parseIdentity(req.Header())
		if err != nil {
			return nil, err
		}
		return next(withIdentity(ctx, identity), req)
	}
}

func (i *identityInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		setIdentity(conn.RequestHeader(), i.identity)
		return conn
	}
}

func (i *identityInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		identity, err := parseIdentity(conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(withIdentity(ctx, identity), conn)
	}
}

// NewAdminAuthInterceptor creates an interceptor that validates admin tokens
// from request metadata for AdminService methods. An empty token disables
// the admin service.
func NewAdminAuthInterceptor(adminToken string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if adminToken == "" {
				return nil, connect.NewError(connect.CodePermissionDenied, errors.New("admin service disabled"))
			}

			token := req.Header().Get(AdminTokenHeader)
			if token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, nil)
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, nil)
			}

			return next(ctx, req)
		}
	}
}

// NewClientAdminTokenInterceptor sets the admin token on outgoing requests.
func NewClientAdminTokenInterceptor(adminToken string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if adminToken != "" {
				req.Header().Set(AdminTokenHeader, adminToken)
			}
			return next(ctx, req)
		}
	}
}
