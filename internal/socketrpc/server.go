package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/scheduler"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

const (
	maxRequestSize    = 64 * 1024
	staleProbeTimeout = 500 * time.Millisecond
	maxRecentLimit    = 10000
)

// TickStats reports scheduler counters.
type TickStats interface {
	Stats() scheduler.Stats
}

// Server answers queries about the running pipeline. It is a render sink
// so Render always returns the model most recently delivered.
type Server struct {
	socketPath string
	stats      TickStats
	history    model.HistoryReader
	latest     atomic.Pointer[viewmodel.RenderModel]

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates a server. history may be nil when recording is off.
func NewServer(socketPath string, stats TickStats, history model.HistoryReader) *Server {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	return &Server{
		socketPath: socketPath,
		stats:      stats,
		history:    history,
		quit:       make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Render stores rm as the latest model.
func (s *Server) Render(rm viewmodel.RenderModel) {
	s.latest.Store(&rm)
}

// Path returns the socket path.
func (s *Server) Path() string { return s.socketPath }

// Start listens on the socket. A leftover socket file with no listener is
// removed; a live one is an error.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, staleProbeTimeout)
		if dialErr == nil {
			conn.Close()
			return fmt.Errorf("socketrpc: another instance is listening on %s", s.socketPath)
		}
		os.Remove(s.socketPath)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	log.Printf("socketrpc: listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener and open connections, waits for handlers and
// removes the socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.connMu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.connMu.Unlock()
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("socketrpc: accept error: %v", err)
			continue
		}

		s.connMu.Lock()
		select {
		case <-s.quit:
			s.connMu.Unlock()
			conn.Close()
			return
		default:
		}
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		resp := Response{JSONRPC: "2.0"}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp.Error = &RPCError{Code: codeParse, Message: "parse error"}
		} else {
			resp = s.dispatch(req)
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	result := func(v any, err error) Response {
		if err != nil {
			code := CodeAppError
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				code = rpcErr.Code
			}
			resp.Error = &RPCError{Code: code, Message: err.Error()}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: codeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	switch req.Method {
	case "Stats":
		if s.stats == nil {
			return result(scheduler.Stats{}, nil)
		}
		return result(s.stats.Stats(), nil)

	case "Render":
		rm := s.latest.Load()
		if rm == nil {
			return result(nil, &RPCError{Code: CodeUnavailable, Message: "no render yet"})
		}
		return result(rm, nil)

	case "RecentSamples":
		var p struct{ Limit int }
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				resp.Error = &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
				return resp
			}
		}
		if p.Limit < 1 || p.Limit > maxRecentLimit {
			resp.Error = &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("limit must be 1-%d", maxRecentLimit)}
			return resp
		}
		if s.history == nil {
			return result(nil, errHistoryDisabled)
		}
		return result(s.history.RecentSamples(p.Limit))

	case "TotalSampleCount":
		if s.history == nil {
			return result(nil, errHistoryDisabled)
		}
		return result(s.history.TotalSampleCount())

	case "StatusCounts":
		if s.history == nil {
			return result(nil, errHistoryDisabled)
		}
		return result(s.history.StatusCounts())

	default:
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}

var errHistoryDisabled = &RPCError{Code: CodeUnavailable, Message: "history is disabled"}
