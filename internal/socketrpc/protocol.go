// Package socketrpc serves the running dashboard's live state and history
// to local tools over a Unix domain socket using JSON-RPC 2.0.
package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Methods, one JSON object per line in each direction:
//
//	Stats              (none)          scheduler.Stats
//	Render             (none)          viewmodel.RenderModel
//	RecentSamples      {Limit: int}    []model.HistoryRecord
//	TotalSampleCount   (none)          int64
//	StatusCounts       (none)          map[string]int64
//
// Error codes follow JSON-RPC 2.0 plus two application codes.
const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	CodeAppError       = -32000
	CodeUnavailable    = -32001 // no render yet, or history disabled
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// DefaultSocketPath prefers $XDG_RUNTIME_DIR/piezodash/piezodash.sock and
// falls back to ~/.local/state/piezodash/piezodash.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "piezodash", "piezodash.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "piezodash.sock")
	}
	return filepath.Join(home, ".local", "state", "piezodash", "piezodash.sock")
}
