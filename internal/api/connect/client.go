package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/osa030/mediad/internal/domain/client"
)

// Client is a typed client for the session and admin services.
type Client struct {
	attach         *connect.Client[Empty, AttachResponse]
	detach         *connect.Client[DetachRequest, CommandResponse]
	getChildren    *connect.Client[GetChildrenRequest, GetChildrenResponse]
	subscribe      *connect.Client[Empty, Event]
	getStatus      *connect.Client[Empty, StatusResponse]
	seek           *connect.Client[SeekRequest, CommandResponse]
	playFromID     *connect.Client[PlayFromIDRequest, CommandResponse]
	playFromSearch *connect.Client[PlayFromSearchRequest, CommandResponse]
	commands       map[string]*connect.Client[Empty, CommandResponse]

	adminStatus *connect.Client[Empty, StatusResponse]
	listClients *connect.Client[Empty, ListClientsResponse]
	adminPause  *connect.Client[Empty, CommandResponse]
	shutdown    *connect.Client[ShutdownRequest, CommandResponse]
}

// NewClient creates a client for the server at baseURL presenting identity.
// adminToken is only needed for admin calls.
func NewClient(httpClient connect.HTTPClient, baseURL string, identity client.Identity, adminToken string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts := []connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewClientIdentityInterceptor(identity)),
	}
	adminOpts := append([]connect.ClientOption{
		connect.WithInterceptors(NewClientAdminTokenInterceptor(adminToken)),
	}, opts...)

	c := &Client{
		attach:         connect.NewClient[Empty, AttachResponse](httpClient, baseURL+SessionServiceAttachProcedure, opts...),
		detach:         connect.NewClient[DetachRequest, CommandResponse](httpClient, baseURL+SessionServiceDetachProcedure, opts...),
		getChildren:    connect.NewClient[GetChildrenRequest, GetChildrenResponse](httpClient, baseURL+SessionServiceGetChildrenProcedure, opts...),
		subscribe:      connect.NewClient[Empty, Event](httpClient, baseURL+SessionServiceSubscribeProcedure, opts...),
		getStatus:      connect.NewClient[Empty, StatusResponse](httpClient, baseURL+SessionServiceGetStatusProcedure, opts...),
		seek:           connect.NewClient[SeekRequest, CommandResponse](httpClient, baseURL+SessionServiceSeekProcedure, opts...),
		playFromID:     connect.NewClient[PlayFromIDRequest, CommandResponse](httpClient, baseURL+SessionServicePlayFromIDProcedure, opts...),
		playFromSearch: connect.NewClient[PlayFromSearchRequest, CommandResponse](httpClient, baseURL+SessionServicePlayFromSearchProcedure, opts...),
		commands:       make(map[string]*connect.Client[Empty, CommandResponse]),

		adminStatus: connect.NewClient[Empty, StatusResponse](httpClient, baseURL+AdminServiceGetStatusProcedure, adminOpts...),
		listClients: connect.NewClient[Empty, ListClientsResponse](httpClient, baseURL+AdminServiceListClientsProcedure, adminOpts...),
		adminPause:  connect.NewClient[Empty, CommandResponse](httpClient, baseURL+AdminServicePauseProcedure, adminOpts...),
		shutdown:    connect.NewClient[ShutdownRequest, CommandResponse](httpClient, baseURL+AdminServiceShutdownProcedure, adminOpts...),
	}

	for _, procedure := range []string{
		SessionServicePlayProcedure,
		SessionServicePauseProcedure,
		SessionServiceStopProcedure,
		SessionServiceSkipNextProcedure,
		SessionServiceSkipPreviousProcedure,
		SessionServiceStartProcedure,
		SessionServiceEndProcedure,
	} {
		c.commands[procedure] = connect.NewClient[Empty, CommandResponse](httpClient, baseURL+procedure, opts...)
	}
	return c
}

// Attach opens a connection and returns its browse root.
func (c *Client) Attach(ctx context.Context) (*AttachResponse, error) {
	resp, err := c.attach.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Detach closes a connection.
func (c *Client) Detach(ctx context.Context, connectionID string) error {
	_, err := c.detach.CallUnary(ctx, connect.NewRequest(&DetachRequest{ConnectionID: connectionID}))
	return err
}

// GetChildren lists the children of parentID as seen by the connection.
func (c *Client) GetChildren(ctx context.Context, connectionID, parentID string) ([]Track, error) {
	resp, err := c.getChildren.CallUnary(ctx, connect.NewRequest(&GetChildrenRequest{
		ConnectionID: connectionID,
		ParentID:     parentID,
	}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Items, nil
}

// Subscribe streams session events to fn until ctx is done, the session ends
// or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, fn func(*Event) error) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}

// Status returns the session status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	resp, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) command(ctx context.Context, procedure string) error {
	_, err := c.commands[procedure].CallUnary(ctx, connect.NewRequest(&Empty{}))
	return err
}

// Play starts or resumes playback.
func (c *Client) Play(ctx context.Context) error { return c.command(ctx, SessionServicePlayProcedure) }

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) error { return c.command(ctx, SessionServicePauseProcedure) }

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) error { return c.command(ctx, SessionServiceStopProcedure) }

// SkipNext skips to the next queue item.
func (c *Client) SkipNext(ctx context.Context) error {
	return c.command(ctx, SessionServiceSkipNextProcedure)
}

// SkipPrevious skips to the previous queue item.
func (c *Client) SkipPrevious(ctx context.Context) error {
	return c.command(ctx, SessionServiceSkipPreviousProcedure)
}

// Start marks the session as explicitly started.
func (c *Client) Start(ctx context.Context) error { return c.command(ctx, SessionServiceStartProcedure) }

// End asks the session to stop once playback is idle.
func (c *Client) End(ctx context.Context) error { return c.command(ctx, SessionServiceEndProcedure) }

// Seek moves the playback position.
func (c *Client) Seek(ctx context.Context, position time.Duration) error {
	_, err := c.seek.CallUnary(ctx, connect.NewRequest(&SeekRequest{PositionMs: position.Milliseconds()}))
	return err
}

// PlayFromID plays a media id.
func (c *Client) PlayFromID(ctx context.Context, mediaID string) error {
	_, err := c.playFromID.CallUnary(ctx, connect.NewRequest(&PlayFromIDRequest{MediaID: mediaID}))
	return err
}

// PlayFromSearch plays the results of query.
func (c *Client) PlayFromSearch(ctx context.Context, query string) error {
	_, err := c.playFromSearch.CallUnary(ctx, connect.NewRequest(&PlayFromSearchRequest{Query: query}))
	return err
}

// AdminStatus returns the session status through the admin service.
func (c *Client) AdminStatus(ctx context.Context) (*StatusResponse, error) {
	resp, err := c.adminStatus.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// ListClients lists attached clients.
func (c *Client) ListClients(ctx context.Context) ([]ClientInfo, error) {
	resp, err := c.listClients.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Clients, nil
}

// AdminPause pauses playback through the admin service.
func (c *Client) AdminPause(ctx context.Context) (*CommandResponse, error) {
	resp, err := c.adminPause.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Shutdown tears the session down.
func (c *Client) Shutdown(ctx context.Context, reason string) (*CommandResponse, error) {
	resp, err := c.shutdown.CallUnary(ctx, connect.NewRequest(&ShutdownRequest{Reason: reason}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
