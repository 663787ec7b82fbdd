package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/piezodash/internal/backup"
	"github.com/tinytelemetry/piezodash/internal/duckdb"
	"github.com/tinytelemetry/piezodash/internal/export"
	"github.com/tinytelemetry/piezodash/internal/httpserver"
	"github.com/tinytelemetry/piezodash/internal/journal"
	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/scheduler"
	"github.com/tinytelemetry/piezodash/internal/socketrpc"
	"github.com/tinytelemetry/piezodash/internal/telemetry"
	"github.com/tinytelemetry/piezodash/internal/tui"
	"github.com/tinytelemetry/piezodash/internal/viewmodel"
	"golang.org/x/sync/errgroup"
)

// statsFunc lets the API read scheduler counters before the scheduler exists.
type statsFunc func() scheduler.Stats

func (f statsFunc) Stats() scheduler.Stats { return f() }

// run wires source, store, scheduler and every configured sink and recorder,
// then blocks until the dashboard quits or a signal arrives.
func run(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg)
	defer cleanupLogger()

	if err := tui.InitializeSkin(cfg.Skin, cfg.ConfigDir); err != nil {
		log.Printf("skin %q not loaded, using default: %v", cfg.Skin, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := telemetry.NewStore(cfg.BufferCapacity)
	if err != nil {
		return err
	}

	plugin, err := buildSourcePlugin(cfg)
	if err != nil {
		return err
	}
	src, err := plugin.Build(ctx)
	if err != nil {
		return fmt.Errorf("source %s: %w", plugin.Name(), err)
	}
	defer src.Close()

	var (
		sinks     []scheduler.Sink
		recorders []scheduler.Recorder
		history   model.HistoryReader
	)

	if cfg.HistoryEnabled {
		db, err := duckdb.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer db.Close()

		insertBuffer := duckdb.NewInsertBuffer(db, duckdb.InsertBufferConfig{
			BatchSize:     cfg.HistoryBatchSize,
			FlushInterval: cfg.HistoryFlushInterval,
		})
		defer insertBuffer.Stop()
		recorders = append(recorders, insertBuffer)

		cleaner := duckdb.NewRetentionCleaner(db, duckdb.RetentionConfig{Retention: cfg.HistoryRetention})
		defer cleaner.Stop()

		snapshots, err := backup.NewManager(db, backup.Config{
			Enabled:     cfg.BackupEnabled,
			Interval:    cfg.BackupInterval,
			LocalDir:    cfg.BackupDir,
			KeepLast:    cfg.BackupKeepLast,
			BucketURL:   cfg.BackupBucketURL,
			S3Endpoint:  cfg.BackupS3Endpoint,
			S3Region:    cfg.BackupS3Region,
			S3AccessKey: cfg.BackupS3AccessKey,
			S3SecretKey: cfg.BackupS3SecretKey,
			S3UseSSL:    cfg.BackupS3UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize snapshots: %w", err)
		}
		defer snapshots.Stop()

		history = db
	}

	if cfg.RecordPath != "" {
		rec, err := journal.Open(cfg.RecordPath)
		if err != nil {
			return err
		}
		defer func() {
			written, failed := rec.Counts()
			log.Printf("journal: recorded %d lines to %s (%d failed)", written, rec.Path(), failed)
			rec.Close()
		}()
		recorders = append(recorders, rec)
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := export.NewOTLPExporter(export.OTLPConfig{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: cfg.OTLPServiceName,
		})
		if err != nil {
			return err
		}
		defer exporter.Close()
		recorders = append(recorders, exporter)
	}

	if cfg.MQTTPublishTopic != "" {
		publisher, err := export.NewMQTTPublisher(export.MQTTConfig{
			Server:   cfg.MQTTServer,
			ClientID: cfg.MQTTClientID + "-pub",
			Topic:    cfg.MQTTPublishTopic,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Retained: true,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	// The API is a sink, so it exists before the scheduler but only starts
	// serving once the scheduler it reports on is set.
	var (
		sched *scheduler.Scheduler
		api   *httpserver.Server
		sock  *socketrpc.Server
	)
	stats := statsFunc(func() scheduler.Stats { return sched.Stats() })
	if cfg.APIEnabled {
		api = httpserver.NewServer(httpserver.Config{
			Addr:      cfg.APIAddr,
			JWTSecret: cfg.APIJWTSecret,
			Stats:     stats,
			History:   history,
		})
		sinks = append(sinks, api)
	}
	if cfg.SocketEnabled {
		sock = socketrpc.NewServer(cfg.SocketPath, stats, history)
		sinks = append(sinks, sock)
	}

	var (
		program *tea.Program
		tuiSink *tui.ProgramSink
	)
	if cfg.Headless {
		sinks = append(sinks, statusLogSink())
	} else {
		program = tea.NewProgram(tui.NewDashboardModel(plugin.Name()), tea.WithAltScreen(), tea.WithContext(ctx))
		tuiSink = tui.NewProgramSink(program)
		defer tuiSink.Close()
		sinks = append(sinks, tuiSink)
	}

	sched, err = scheduler.New(src, store, scheduler.Config{
		TickInterval: cfg.TickInterval,
		ReadTimeout:  cfg.ReadTimeout,
		Sinks:        sinks,
		Recorders:    recorders,
	})
	if err != nil {
		return err
	}

	if api != nil {
		if err := api.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer api.Stop()
	}
	if sock != nil {
		if err := sock.Start(); err != nil {
			return err
		}
		defer sock.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := sched.Start(gctx); err != nil {
		return err
	}
	defer sched.Stop()

	if program != nil {
		g.Go(func() error {
			_, err := program.Run()
			stop()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
					return fmt.Errorf("TUI requires a real terminal (use -headless)")
				}
				return fmt.Errorf("error running TUI: %w", err)
			}
			return nil
		})
	} else {
		printStartupBanner(cfg, plugin)
		g.Go(func() error {
			<-gctx.Done()
			fmt.Println("\nShutting down...")
			return nil
		})
	}

	err = g.Wait()
	// Stop ticking before sinks and recorders are torn down by the defers.
	sched.Stop()
	final := sched.Stats()
	log.Printf("piezodash: stopped after %d ticks (%d dropped)", final.Ticks, final.Dropped)
	return err
}

// statusLogSink logs status transitions in headless mode.
func statusLogSink() scheduler.Sink {
	last := ""
	return scheduler.SinkFunc(func(rm viewmodel.RenderModel) {
		if rm.StatusText == last {
			return
		}
		log.Printf("status: %s -> %s (%s, %s, %s)", orDash(last), rm.StatusText,
			rm.ADCDisplay, rm.FrequencyDisplay, rm.AmplitudeDisplay)
		last = rm.StatusText
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printStartupBanner(cfg appConfig, plugin sourcePlugin) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	row := func(on bool, label, value string) string {
		if on {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{
		"",
		cyan.Bold(true).Render("    Piezo Sensor Dashboard") + " " + dim.Render("v"+version),
		"",
		separator,
		"",
		bold.Render("    Pipeline"),
		"",
		row(true, "Source", plugin.Name()+" ("+plugin.Describe()+")"),
		row(true, "Tick", fmt.Sprintf("%s (read timeout %s)", cfg.TickInterval, cfg.ReadTimeout)),
		row(true, "Buffer", fmt.Sprintf("%d points", cfg.BufferCapacity)),
		"",
		bold.Render("    Outputs"),
		"",
		row(cfg.APIEnabled, "HTTP API", cfg.APIAddr),
		row(cfg.SocketEnabled, "Socket", shortenPath(cfg.SocketPath)),
		row(cfg.HistoryEnabled, "History", shortenPath(cfg.DBPath)),
		row(cfg.HistoryEnabled && cfg.BackupEnabled, "Snapshots", shortenPath(cfg.BackupDir)),
		row(cfg.RecordPath != "", "Recording", shortenPath(cfg.RecordPath)),
		row(cfg.OTLPEndpoint != "", "OTLP", cfg.OTLPEndpoint),
		row(cfg.MQTTPublishTopic != "", "MQTT", cfg.MQTTPublishTopic),
		"",
		bold.Render("    Config"),
		"",
	}
	if cfg.ConfigPath != "" {
		lines = append(lines, row(true, "Config File", shortenPath(cfg.ConfigPath)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}
	lines = append(lines, row(true, "Log File", shortenPath(cfg.LogPath)))
	lines = append(lines,
		"",
		separator,
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
