package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/piezodash/internal/backup"
	"github.com/tinytelemetry/piezodash/internal/duckdb"
	"github.com/tinytelemetry/piezodash/internal/export"
	"github.com/tinytelemetry/piezodash/internal/httpserver"
	"github.com/tinytelemetry/piezodash/internal/model"
	"github.com/tinytelemetry/piezodash/internal/socketrpc"
	"github.com/tinytelemetry/piezodash/internal/source"
)

const (
	defaultHistoryBatchSize     = 100
	defaultHistoryFlushInterval = 2 * time.Second
	defaultLogMaxSizeMB         = 10
	defaultLogMaxBackups        = 3
	defaultADSSampleRate        = 128
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	BufferCapacity int           `mapstructure:"buffer-capacity"`
	TickInterval   time.Duration `mapstructure:"tick-interval"`
	ReadTimeout    time.Duration `mapstructure:"read-timeout"`

	Source     string `mapstructure:"source"`
	SerialPort string `mapstructure:"serial-port"`
	SerialBaud int    `mapstructure:"serial-baud"`
	TCPAddr    string `mapstructure:"tcp-addr"`
	ReplayPath string `mapstructure:"replay-path"`
	ReplayLoop bool   `mapstructure:"replay-loop"`
	RecordPath string `mapstructure:"record-path"`

	MQTTServer       string `mapstructure:"mqtt-server"`
	MQTTClientID     string `mapstructure:"mqtt-client-id"`
	MQTTTopic        string `mapstructure:"mqtt-topic"`
	MQTTUsername     string `mapstructure:"mqtt-username"`
	MQTTPassword     string `mapstructure:"mqtt-password"`
	MQTTPublishTopic string `mapstructure:"mqtt-publish-topic"`

	I2CBus        string `mapstructure:"i2c-bus"`
	I2CAddress    int    `mapstructure:"i2c-address"`
	ADSChannel    int    `mapstructure:"ads-channel"`
	ADSSampleRate int    `mapstructure:"ads-sample-rate"`

	HistoryEnabled       bool          `mapstructure:"history-enabled"`
	DBPath               string        `mapstructure:"db-path"`
	HistoryRetention     time.Duration `mapstructure:"history-retention"`
	HistoryBatchSize     int           `mapstructure:"history-batch-size"`
	HistoryFlushInterval time.Duration `mapstructure:"history-flush-interval"`

	BackupEnabled     bool          `mapstructure:"backup-enabled"`
	BackupInterval    time.Duration `mapstructure:"backup-interval"`
	BackupDir         string        `mapstructure:"backup-dir"`
	BackupKeepLast    int           `mapstructure:"backup-keep-last"`
	BackupBucketURL   string        `mapstructure:"backup-bucket-url"`
	BackupS3Endpoint  string        `mapstructure:"backup-s3-endpoint"`
	BackupS3Region    string        `mapstructure:"backup-s3-region"`
	BackupS3AccessKey string        `mapstructure:"backup-s3-access-key"`
	BackupS3SecretKey string        `mapstructure:"backup-s3-secret-key"`
	BackupS3UseSSL    bool          `mapstructure:"backup-s3-use-ssl"`

	SocketEnabled bool   `mapstructure:"socket-enabled"`
	SocketPath    string `mapstructure:"socket-path"`

	APIEnabled   bool   `mapstructure:"api-enabled"`
	APIAddr      string `mapstructure:"api-addr"`
	APIJWTSecret string `mapstructure:"api-jwt-secret"`

	OTLPEndpoint    string `mapstructure:"otlp-endpoint"`
	OTLPServiceName string `mapstructure:"otlp-service-name"`

	Skin          string `mapstructure:"skin"`
	Headless      bool   `mapstructure:"headless"`
	LogPath       string `mapstructure:"log-path"`
	LogMaxSizeMB  int    `mapstructure:"log-max-size-mb"`
	LogMaxBackups int    `mapstructure:"log-max-backups"`

	ConfigPath string `mapstructure:"-"` // not from config file
	ConfigDir  string `mapstructure:"-"`
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "piezodash")

	v := viper.New()
	v.SetEnvPrefix("PIEZO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("buffer-capacity", model.DefaultBufferCapacity)
	v.SetDefault("tick-interval", model.DefaultTickInterval)
	v.SetDefault("read-timeout", model.DefaultReadTimeout)
	v.SetDefault("source", sourceStatic)
	v.SetDefault("serial-port", "")
	v.SetDefault("serial-baud", source.DefaultBaudRate)
	v.SetDefault("tcp-addr", source.DefaultTCPAddr)
	v.SetDefault("replay-path", "")
	v.SetDefault("replay-loop", true)
	v.SetDefault("record-path", "")
	v.SetDefault("mqtt-server", source.DefaultMQTTServer)
	v.SetDefault("mqtt-client-id", source.DefaultMQTTClientID)
	v.SetDefault("mqtt-topic", source.DefaultMQTTTopic)
	v.SetDefault("mqtt-username", "")
	v.SetDefault("mqtt-password", "")
	v.SetDefault("mqtt-publish-topic", "")
	v.SetDefault("i2c-bus", "")
	v.SetDefault("i2c-address", source.DefaultADSAddress)
	v.SetDefault("ads-channel", 0)
	v.SetDefault("ads-sample-rate", defaultADSSampleRate)
	v.SetDefault("history-enabled", false)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "piezodash", "history.duckdb"))
	v.SetDefault("history-retention", duckdb.DefaultRetention)
	v.SetDefault("history-batch-size", defaultHistoryBatchSize)
	v.SetDefault("history-flush-interval", defaultHistoryFlushInterval)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", backup.DefaultInterval)
	v.SetDefault("backup-dir", filepath.Join(home, ".local", "share", "piezodash", "snapshots"))
	v.SetDefault("backup-keep-last", backup.DefaultKeepLast)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-use-ssl", true)
	v.SetDefault("socket-enabled", true)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-addr", httpserver.DefaultAddr)
	v.SetDefault("api-jwt-secret", "")
	v.SetDefault("otlp-endpoint", "")
	v.SetDefault("otlp-service-name", export.DefaultServiceName)
	v.SetDefault("skin", model.DefaultSkin)
	v.SetDefault("headless", false)
	v.SetDefault("log-path", filepath.Join(home, ".local", "state", "piezodash", "piezodash.log"))
	v.SetDefault("log-max-size-mb", defaultLogMaxSizeMB)
	v.SetDefault("log-max-backups", defaultLogMaxBackups)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(configDir, "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.ConfigDir = configDir

	if !v.IsSet("read-timeout") && cfg.TickInterval > 0 {
		cfg.ReadTimeout = min(model.DefaultReadTimeout, cfg.TickInterval)
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.LogPath = expandHome(cfg.LogPath, home)
	cfg.ReplayPath = expandHome(cfg.ReplayPath, home)
	cfg.RecordPath = expandHome(cfg.RecordPath, home)
	cfg.SocketPath = expandHome(cfg.SocketPath, home)
	cfg.BackupDir = expandHome(cfg.BackupDir, home)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// validate reports the first invalid setting as a *model.ConfigError.
func (c appConfig) validate() error {
	fail := func(field, format string, args ...any) error {
		return &model.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if c.BufferCapacity < 1 {
		return fail("buffer-capacity", "must be at least 1, got %d", c.BufferCapacity)
	}
	if c.TickInterval <= 0 {
		return fail("tick-interval", "must be positive, got %s", c.TickInterval)
	}
	if c.ReadTimeout <= 0 || c.ReadTimeout > c.TickInterval {
		return fail("read-timeout", "must be in (0, %s], got %s", c.TickInterval, c.ReadTimeout)
	}
	if !slices.Contains(sourceKinds, c.Source) {
		return fail("source", "unknown kind %q (want one of %s)", c.Source, strings.Join(sourceKinds, ", "))
	}

	switch c.Source {
	case sourceSerial:
		if c.SerialPort == "" {
			return fail("serial-port", "required for the serial source")
		}
		if c.SerialBaud <= 0 {
			return fail("serial-baud", "must be positive, got %d", c.SerialBaud)
		}
	case sourceTCP:
		if err := checkHostPort(c.TCPAddr); err != nil {
			return fail("tcp-addr", "%v", err)
		}
	case sourceReplay:
		if c.ReplayPath == "" {
			return fail("replay-path", "required for the replay source")
		}
		if c.RecordPath != "" && filepath.Clean(c.RecordPath) == filepath.Clean(c.ReplayPath) {
			return fail("record-path", "must differ from replay-path")
		}
	case sourceMQTT:
		if c.MQTTTopic == "" {
			return fail("mqtt-topic", "required for the mqtt source")
		}
	case sourceADS1115:
		if c.ADSChannel < 0 || c.ADSChannel > 3 {
			return fail("ads-channel", "must be 0-3, got %d", c.ADSChannel)
		}
		if c.I2CAddress <= 0 || c.I2CAddress > 0x7f {
			return fail("i2c-address", "must be a 7-bit address, got %#x", c.I2CAddress)
		}
	}

	if c.APIEnabled {
		if err := checkHostPort(c.APIAddr); err != nil {
			return fail("api-addr", "%v", err)
		}
	}
	if c.HistoryEnabled && c.HistoryBatchSize < 1 {
		return fail("history-batch-size", "must be at least 1, got %d", c.HistoryBatchSize)
	}
	if c.BackupEnabled {
		if !c.HistoryEnabled {
			return fail("backup-enabled", "requires history-enabled")
		}
		if c.BackupInterval <= 0 {
			return fail("backup-interval", "must be positive, got %s", c.BackupInterval)
		}
	}
	if c.LogMaxSizeMB < 1 {
		return fail("log-max-size-mb", "must be at least 1, got %d", c.LogMaxSizeMB)
	}
	return nil
}

func checkHostPort(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
