package source

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
)

// DefaultTCPAddr is where sensor bridges connect by default.
const DefaultTCPAddr = "127.0.0.1:4000"

// TCPFeed accepts connections from sensor bridges and forwards every
// newline-delimited reading they send.
type TCPFeed struct {
	listener    net.Listener
	addr        string
	lineChan    chan string
	maxLineSize int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewTCPFeed creates a TCP feed. An empty addr means DefaultTCPAddr.
func NewTCPFeed(addr string, conf ...ReaderConfig) *TCPFeed {
	if addr == "" {
		addr = DefaultTCPAddr
	}
	var c ReaderConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	c = c.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &TCPFeed{
		addr:        addr,
		lineChan:    make(chan string, c.BufferSize),
		maxLineSize: c.MaxLineSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins accepting connections.
func (s *TCPFeed) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *TCPFeed) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner when the feed stops.
	go func() {
		<-s.ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), s.maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case s.lineChan <- line:
		case <-s.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Printf("source: dropped tcp connection %s, line exceeds %d bytes", conn.RemoteAddr(), s.maxLineSize)
			return
		}
		log.Printf("source: tcp read error from %s: %v", conn.RemoteAddr(), err)
	}
}

// Stop closes the listener and all connections, then closes Lines.
func (s *TCPFeed) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		close(s.lineChan)
	})
}

func (s *TCPFeed) Lines() <-chan string { return s.lineChan }
func (s *TCPFeed) Name() string         { return "tcp" }

// Addr returns the active listen address, or the configured one before Start.
func (s *TCPFeed) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
