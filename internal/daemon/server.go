package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/ipc"
)

// ErrAlreadyRunning is returned when another daemon owns the socket
var ErrAlreadyRunning = errors.New("daemon already running")

const maxAcceptBackoff = time.Second

// Listen binds the daemon socket. A leftover socket file is removed only when
// nothing answers on it.
func Listen(socketPath string) (net.Listener, error) {
	if _, err := os.Stat(socketPath); err == nil {
		conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w (socket %s)", ErrAlreadyRunning, socketPath)
		}
		internal.LogInfo("Removing stale socket %s", socketPath)
		if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	return ln, nil
}

// Server feeds requests from socket clients into the state machine
type Server struct {
	state      *State
	ln         net.Listener
	onShutdown func()

	closed atomic.Bool
	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates a server on ln. onShutdown runs after a Shutdown request
// has been answered.
func NewServer(state *State, ln net.Listener, onShutdown func()) *Server {
	if onShutdown == nil {
		onShutdown = func() {}
	}
	return &Server{
		state:      state,
		ln:         ln,
		onShutdown: onShutdown,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until ctx is cancelled or Close is called, then
// waits for every connection handler to return.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.wg.Wait()

	internal.LogInfo("Listening on %s", s.ln.Addr())
	backoff := 5 * time.Millisecond
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			internal.LogWarn("Accept failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			continue
		}
		backoff = 5 * time.Millisecond

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting and closes open connections
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return s.ln.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	log := internal.Logger().With(zap.String("conn", uuid.NewString()))
	log.Debug("client connected")

	for {
		req, err := ipc.ReadRequest(conn)
		if err != nil {
			var pe *ipc.ProtocolError
			switch {
			case errors.Is(err, io.EOF), s.closed.Load():
				log.Debug("client disconnected")
			case errors.As(err, &pe):
				log.Warn("closing connection after protocol error", zap.Error(err))
			default:
				log.Debug("read failed", zap.Error(err))
			}
			return
		}

		resp, after := s.dispatch(ctx, req)
		if e, ok := resp.(ipc.ErrorResponse); ok {
			log.Debug("request failed", zap.String("request", req.Kind()), zap.String("error", e.Message))
		}
		if err := ipc.WriteResponse(conn, resp); err != nil {
			log.Debug("write failed", zap.Error(err))
			return
		}
		if after != nil {
			after()
		}
	}
}
