package socketrpc_test

import (
	"bufio"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/scheduler"
	"github.com/tinytelemetry/piezodash/internal/socketrpc"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

type stats struct{}

func (stats) Stats() scheduler.Stats { return scheduler.Stats{Ticks: 40, Dropped: 2} }

type history struct{}

func (history) RecentSamples(limit int) ([]model.HistoryRecord, error) {
	f := 38.0
	out := make([]model.HistoryRecord, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, model.HistoryRecord{
			Timestamp: time.Date(2024, 5, 1, 12, 0, i, 0, time.UTC),
			Frequency: &f,
			Status:    "Normal",
		})
	}
	return out, nil
}
func (history) TotalSampleCount() (int64, error) { return 40, nil }
func (history) StatusCounts() (map[string]int64, error) {
	return map[string]int64{"Normal": 38, "Error": 2}, nil
}

func startTestServer(t *testing.T, h model.HistoryReader) (string, *socketrpc.Server) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "p.sock")
	srv := socketrpc.NewServer(sockPath, stats{}, h)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)
	return sockPath, srv
}

func dial(t *testing.T, path string) *socketrpc.Client {
	t.Helper()
	c, err := socketrpc.Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv := startTestServer(t, history{})
	srv.Render(viewmodel.RenderModel{
		FrequencyDisplay: "Frequency: 38.0 Hz",
		StatusText:       "Normal",
		StatusStyle:      viewmodel.StatusStyle{Class: viewmodel.StyleOK},
	})
	c := dial(t, sockPath)

	st, err := c.Stats()
	if err != nil || st.Ticks != 40 || st.Dropped != 2 {
		t.Fatalf("Stats = %+v, %v", st, err)
	}

	rm, err := c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rm.FrequencyDisplay != "Frequency: 38.0 Hz" || rm.StatusStyle.Class != viewmodel.StyleOK {
		t.Fatalf("Render = %+v", rm)
	}

	recent, err := c.RecentSamples(3)
	if err != nil || len(recent) != 3 || *recent[0].Frequency != 38 {
		t.Fatalf("RecentSamples = %+v, %v", recent, err)
	}

	n, err := c.TotalSampleCount()
	if err != nil || n != 40 {
		t.Fatalf("TotalSampleCount = %d, %v", n, err)
	}

	counts, err := c.StatusCounts()
	if err != nil || counts["Error"] != 2 {
		t.Fatalf("StatusCounts = %v, %v", counts, err)
	}
}

func TestRoundtrip_Unavailable(t *testing.T) {
	sockPath, _ := startTestServer(t, nil)
	c := dial(t, sockPath)

	_, err := c.Render()
	var rpcErr *socketrpc.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != socketrpc.CodeUnavailable {
		t.Fatalf("Render err = %v, want unavailable", err)
	}
	if _, err := c.TotalSampleCount(); !errors.As(err, &rpcErr) || !strings.Contains(rpcErr.Message, "history") {
		t.Fatalf("TotalSampleCount err = %v, want history disabled", err)
	}

	// The connection stays usable after application errors.
	if _, err := c.Stats(); err != nil {
		t.Fatalf("Stats after error: %v", err)
	}
}

func TestServer_ParseErrorKeepsConnection(t *testing.T) {
	sockPath, _ := startTestServer(t, nil)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	r := bufio.NewReader(conn)
	conn.Write([]byte("{nope\n"))
	line, err := r.ReadString('\n')
	if err != nil || !strings.Contains(line, "-32700") {
		t.Fatalf("parse error reply = %q, %v", line, err)
	}

	conn.Write([]byte(`{"jsonrpc":"2.0","id":5,"method":"Stats"}` + "\n"))
	line, err = r.ReadString('\n')
	if err != nil || !strings.Contains(line, `"id":5`) {
		t.Fatalf("follow-up reply = %q, %v", line, err)
	}
}

func TestServer_RejectsSecondInstance(t *testing.T) {
	sockPath, _ := startTestServer(t, nil)

	other := socketrpc.NewServer(sockPath, nil, nil)
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("second server started on a live socket")
	}
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "stale.sock")
	if err := os.WriteFile(sockPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	srv := socketrpc.NewServer(sockPath, stats{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start over stale file: %v", err)
	}
	srv.Stop()

	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Fatalf("socket file not removed on Stop: %v", err)
	}
}

func TestServer_StopClosesIdleClients(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "idle.sock")
	srv := socketrpc.NewServer(sockPath, stats{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	c := dial(t, sockPath)
	if _, err := c.Stats(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an idle client")
	}
}
