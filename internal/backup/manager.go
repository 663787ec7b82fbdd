package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	DefaultInterval = 6 * time.Hour
	DefaultKeepLast = 24

	filePrefix = "piezodash-"
	fileSuffix = ".duckdb"
)

// Manager snapshots the history database on an interval, uploads each
// snapshot when a bucket is configured, and prunes old local copies.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewManager validates cfg and starts the snapshot loop. It returns nil
// when snapshots are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.Path()) == "" {
		return nil, fmt.Errorf("backup: history is in-memory, nothing to snapshot")
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when snapshots are enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = DefaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(S3Config{
			BucketURL: cfg.BucketURL,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	m := newManager(store, cfg, uploader)
	if err := m.RunOnce(m.ctx); err != nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func newManager(store Snapshotter, cfg Config, uploader Uploader) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    store,
		cfg:      cfg,
		uploader: uploader,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(m.ctx); err != nil && m.ctx.Err() == nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// RunOnce takes one snapshot, uploads it if configured, then prunes.
func (m *Manager) RunOnce(ctx context.Context) error {
	name := filePrefix + m.now().UTC().Format("20060102-150405.000") + fileSuffix
	localPath := filepath.Join(m.cfg.LocalDir, name)

	if err := m.store.SnapshotTo(localPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s", localPath)

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, localPath); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		log.Printf("backup: uploaded snapshot %s", name)
	}

	if err := pruneSnapshots(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

// Stop cancels an in-flight upload and waits for the loop to exit.
func (m *Manager) Stop() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

func pruneSnapshots(dir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	// Names embed a UTC timestamp so lexical order is chronological.
	slices.Sort(matches)
	slices.Reverse(matches)
	for _, old := range matches[keepLast:] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
