package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// configureRuntimeLogger points the std logger at a rotating file so the
// dashboard owns the terminal. Headless runs also log to stderr.
func configureRuntimeLogger(cfg appConfig) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.LogPath == "" {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}

	var out io.Writer = rotator
	if cfg.Headless {
		out = io.MultiWriter(os.Stderr, rotator)
	}
	log.SetOutput(out)
	return func() {
		log.SetOutput(os.Stderr)
		_ = rotator.Close()
	}
}
