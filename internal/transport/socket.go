//go:build !windows

package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxFrameBytes bounds a single newline-delimited frame. Payloads are search
// results and command catalogs; a megabyte is generous.
const maxFrameBytes = 1 << 20

// SocketServer is the backend endpoint: a unix domain socket listener where
// every accepted connection is one peer.
type SocketServer struct {
	socketPath string

	mu           sync.Mutex
	listener     net.Listener
	conns        map[string]net.Conn
	handler      Handler
	onDisconnect func(peer string)
	closed       bool
	nextPeer     uint64

	wg sync.WaitGroup
}

var _ Transport = (*SocketServer)(nil)

// NewSocketServer creates a server endpoint for the given socket path.
// Listen must be called before the endpoint carries traffic.
func NewSocketServer(socketPath string) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		conns:      make(map[string]net.Conn),
	}
}

// Listen creates the socket (cleaning up a stale one), restricts it to the
// owner, and starts accepting peers.
func (s *SocketServer) Listen() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("transport: create socket directory: %w", err)
	}

	if err := cleanupStaleSocket(s.socketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("transport: listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		os.Remove(s.socketPath)
		return fmt.Errorf("transport: socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// SocketPath returns the path this server listens on.
func (s *SocketServer) SocketPath() string { return s.socketPath }

func (s *SocketServer) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.nextPeer++
		peer := fmt.Sprintf("peer-%d", s.nextPeer)
		s.conns[peer] = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go s.readLoop(peer, conn)
	}
}

func (s *SocketServer) readLoop(peer string, conn net.Conn) {
	defer s.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)

		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h(peer, frame)
		}
	}

	s.dropPeer(peer, conn)
}

func (s *SocketServer) dropPeer(peer string, conn net.Conn) {
	conn.Close()

	s.mu.Lock()
	_, known := s.conns[peer]
	delete(s.conns, peer)
	fn := s.onDisconnect
	closed := s.closed
	s.mu.Unlock()

	if known && fn != nil && !closed {
		fn(peer)
	}
}

// Send writes one frame to the named peer. A missing peer yields
// ErrPeerUnreachable so response senders can drop silently.
func (s *SocketServer) Send(peer string, frame []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	conn, ok := s.conns[peer]
	s.mu.Unlock()

	if !ok {
		return ErrPeerUnreachable
	}
	if err := writeFrame(conn, frame); err != nil {
		return ErrPeerUnreachable
	}
	return nil
}

func (s *SocketServer) Handle(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *SocketServer) HandleDisconnect(fn func(peer string)) {
	s.mu.Lock()
	s.onDisconnect = fn
	s.mu.Unlock()
}

// Close stops the listener, closes every peer connection, and removes the
// socket file.
func (s *SocketServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	conns := s.conns
	s.conns = make(map[string]net.Conn)
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: remove socket: %w", err)
	}
	return nil
}

// SocketClient is the front-end endpoint: a single connection to the backend
// socket. Its only peer is named by backendPeer.
type SocketClient struct {
	backendPeer string

	mu           sync.Mutex
	conn         net.Conn
	handler      Handler
	onDisconnect func(peer string)
	closed       bool

	wg sync.WaitGroup
}

var _ Transport = (*SocketClient)(nil)

// DialSocket connects to the backend socket with a bounded timeout.
func DialSocket(socketPath, backendPeer string, timeout time.Duration) (*SocketClient, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("transport: socket not found: %s", socketPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}

	c := &SocketClient{backendPeer: backendPeer, conn: conn}
	c.wg.Add(1)
	go c.readLoop(conn)
	return c, nil
}

func (c *SocketClient) readLoop(conn net.Conn) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(c.backendPeer, frame)
		}
	}

	c.mu.Lock()
	fn := c.onDisconnect
	closed := c.closed
	c.mu.Unlock()
	if fn != nil && !closed {
		fn(c.backendPeer)
	}
}

// Send writes one frame to the backend. Any other peer name is unreachable.
func (c *SocketClient) Send(peer string, frame []byte) error {
	if peer != c.backendPeer {
		return ErrPeerUnreachable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := writeFrame(c.conn, frame); err != nil {
		return ErrPeerUnreachable
	}
	return nil
}

func (c *SocketClient) Handle(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *SocketClient) HandleDisconnect(fn func(peer string)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *SocketClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	err := conn.Close()
	c.wg.Wait()
	return err
}

// writeFrame appends the NDJSON terminator and writes the whole frame.
func writeFrame(conn net.Conn, frame []byte) error {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := conn.Write(buf)
	return err
}

// cleanupStaleSocket removes a socket file left behind by a crashed backend.
// A connectable socket means another instance is live, which is an error.
func cleanupStaleSocket(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("transport: stat socket: %w", err)
	}

	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("transport: socket %s is active (another backend running?)", path)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: remove stale socket: %w", err)
	}
	return nil
}
