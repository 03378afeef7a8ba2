package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultTimeout bounds a client round trip
const DefaultTimeout = 5 * time.Second

var (
	// ErrDaemonNotRunning means nothing is listening on the socket
	ErrDaemonNotRunning = errors.New("daemon is not running")
	// ErrDaemonUnresponsive means the socket accepted but no reply arrived in time
	ErrDaemonUnresponsive = errors.New("daemon is not responding")
)

// RemoteError is an Error response returned by the daemon
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// UnexpectedResponseError is returned when the daemon answers with the wrong kind
type UnexpectedResponseError struct {
	Request  string
	Response string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected %s response to %s", e.Response, e.Request)
}

// Client talks to the daemon. Each call opens its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the socket at socketPath. A zero timeout
// means DefaultTimeout.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// SocketPath returns the socket the client dials
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Dial connects to the daemon socket
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, classify(err)
	}
	return conn, nil
}

func classify(err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrDaemonUnresponsive, err)
	case errors.As(err, &ne) && ne.Timeout():
		return fmt.Errorf("%w: %v", ErrDaemonUnresponsive, err)
	}
	return err
}

// Send performs one request/response round trip
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	conn, err := Dial(ctx, c.socketPath, c.timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if err := WriteRequest(conn, req); err != nil {
		return nil, classify(err)
	}
	resp, err := ReadResponse(conn)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func (c *Client) expectOk(ctx context.Context, req Request) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	switch r := resp.(type) {
	case Ok:
		return nil
	case ErrorResponse:
		return &RemoteError{Message: r.Message}
	default:
		return &UnexpectedResponseError{Request: req.Kind(), Response: resp.Kind()}
	}
}

// Ping checks the daemon answers
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Send(ctx, Ping{})
	if err != nil {
		return err
	}
	if _, ok := resp.(Pong); !ok {
		return &UnexpectedResponseError{Request: "Ping", Response: resp.Kind()}
	}
	return nil
}

// Status returns daemon status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	resp, err := c.Send(ctx, GetStatus{})
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case Status:
		return &r, nil
	case ErrorResponse:
		return nil, &RemoteError{Message: r.Message}
	}
	return nil, &UnexpectedResponseError{Request: "GetStatus", Response: resp.Kind()}
}

// ActiveSession returns the tracked session, or nil when idle
func (c *Client) ActiveSession(ctx context.Context) (*SessionInfo, error) {
	resp, err := c.Send(ctx, GetActiveSession{})
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case SessionInfo:
		return &r, nil
	case ActiveSessionResponse:
		return r.Session, nil
	case ErrorResponse:
		return nil, &RemoteError{Message: r.Message}
	}
	return nil, &UnexpectedResponseError{Request: "GetActiveSession", Response: resp.Kind()}
}

// Metrics returns accounting for the active session
func (c *Client) Metrics(ctx context.Context) (*SessionMetrics, error) {
	resp, err := c.Send(ctx, GetSessionMetrics{})
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case SessionMetrics:
		return &r, nil
	case ErrorResponse:
		return nil, &RemoteError{Message: r.Message}
	}
	return nil, &UnexpectedResponseError{Request: "GetSessionMetrics", Response: resp.Kind()}
}

// Project looks up a project by id
func (c *Client) Project(ctx context.Context, id int64) (*ProjectInfo, error) {
	resp, err := c.Send(ctx, GetProject{ProjectID: id})
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case ProjectResponse:
		return r.Project, nil
	case ErrorResponse:
		return nil, &RemoteError{Message: r.Message}
	}
	return nil, &UnexpectedResponseError{Request: "GetProject", Response: resp.Kind()}
}

func (c *Client) ProjectEntered(ctx context.Context, path, sessionContext string) error {
	return c.expectOk(ctx, ProjectEntered{Path: path, Context: sessionContext})
}

func (c *Client) ProjectLeft(ctx context.Context, path string) error {
	return c.expectOk(ctx, ProjectLeft{Path: path})
}

// StartSession starts tracking path. An empty path is sent as absent.
func (c *Client) StartSession(ctx context.Context, path, sessionContext string) error {
	req := StartSession{Context: sessionContext}
	if path != "" {
		req.ProjectPath = &path
	}
	return c.expectOk(ctx, req)
}

func (c *Client) SwitchProject(ctx context.Context, id int64) error {
	return c.expectOk(ctx, SwitchProject{ProjectID: id})
}

func (c *Client) Stop(ctx context.Context) error      { return c.expectOk(ctx, StopSession{}) }
func (c *Client) Pause(ctx context.Context) error     { return c.expectOk(ctx, PauseSession{}) }
func (c *Client) Resume(ctx context.Context) error    { return c.expectOk(ctx, ResumeSession{}) }
func (c *Client) Heartbeat(ctx context.Context) error { return c.expectOk(ctx, ActivityHeartbeat{}) }
func (c *Client) Shutdown(ctx context.Context) error  { return c.expectOk(ctx, Shutdown{}) }
