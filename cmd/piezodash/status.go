package main

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/piezodash/internal/scheduler"
	"github.com/tinytelemetry/piezodash/internal/socketrpc"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
)

// statusClient is the part of socketrpc.Client the status command reads.
type statusClient interface {
	Stats() (scheduler.Stats, error)
	Render() (viewmodel.RenderModel, error)
	StatusCounts() (map[string]int64, error)
}

// queryStatus prints a running instance's current values and exits.
func queryStatus(w io.Writer, socketPath string) error {
	c, err := socketrpc.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("no running piezodash at %s: %w", socketPath, err)
	}
	defer c.Close()
	return printStatus(w, c)
}

func printStatus(w io.Writer, c statusClient) error {
	st, err := c.Stats()
	if err != nil {
		return err
	}

	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71")).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")).Bold(true)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	fmt.Fprintf(w, "ticks %d %s\n", st.Ticks, dim.Render(fmt.Sprintf("(%d dropped)", st.Dropped)))

	rm, err := c.Render()
	var rpcErr *socketrpc.RPCError
	switch {
	case errors.As(err, &rpcErr) && rpcErr.Code == socketrpc.CodeUnavailable:
		fmt.Fprintln(w, dim.Render("no reading yet"))
	case err != nil:
		return err
	default:
		status := errStyle.Render(rm.StatusText)
		if rm.StatusStyle.Class == viewmodel.StyleOK {
			status = okStyle.Render(rm.StatusText)
		}
		fmt.Fprintf(w, "status %s\n  %s\n  %s\n  %s\n", status, rm.ADCDisplay, rm.FrequencyDisplay, rm.AmplitudeDisplay)
	}

	counts, err := c.StatusCounts()
	if errors.As(err, &rpcErr) && rpcErr.Code == socketrpc.CodeUnavailable {
		return nil
	}
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fmt.Fprintln(w, "history")
	for _, k := range keys {
		fmt.Fprintf(w, "  %-10s %d\n", k, counts[k])
	}
	return nil
}
