package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/scheduler"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

const (
	dialTimeout = 2 * time.Second
	callTimeout = 10 * time.Second
	maxReply    = 16 * 1024 * 1024
)

// Client queries a running dashboard. It implements model.HistoryReader.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

var _ model.HistoryReader = (*Client)(nil)

// Dial connects to the server at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReply)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(method string, params any, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := Request{JSONRPC: "2.0", ID: c.nextID, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("socketrpc: marshal params: %w", err)
		}
		req.Params = data
	}

	c.conn.SetDeadline(time.Now().Add(callTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// Stats returns the scheduler counters.
func (c *Client) Stats() (scheduler.Stats, error) {
	var st scheduler.Stats
	err := c.call("Stats", nil, &st)
	return st, err
}

// Render returns the latest render model.
func (c *Client) Render() (viewmodel.RenderModel, error) {
	var rm viewmodel.RenderModel
	err := c.call("Render", nil, &rm)
	return rm, err
}

func (c *Client) RecentSamples(limit int) ([]model.HistoryRecord, error) {
	var out []model.HistoryRecord
	err := c.call("RecentSamples", map[string]any{"Limit": limit}, &out)
	return out, err
}

func (c *Client) TotalSampleCount() (int64, error) {
	var n int64
	err := c.call("TotalSampleCount", nil, &n)
	return n, err
}

func (c *Client) StatusCounts() (map[string]int64, error) {
	var out map[string]int64
	err := c.call("StatusCounts", nil, &out)
	return out, err
}
