package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name searched for in the config directory (any viper format).
	ConfigFileName = "config"
	// EnvPrefix is the prefix for environment variables, e.g. GDRVFLOW_LIST_ROOTFOLDER.
	EnvPrefix = "GDRVFLOW"
)

// Watermark backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Sink kinds
const (
	SinkJSONL = "jsonl"
	SinkTable = "table"
	SinkS3    = "s3"
)

// Config holds application configuration
type Config struct {
	Profile        string        `mapstructure:"profile"`
	LogLevel       string        `mapstructure:"logLevel"`
	LogFile        string        `mapstructure:"logFile"`
	MaxRetries     int           `mapstructure:"maxRetries"`
	RetryBaseDelay time.Duration `mapstructure:"retryBaseDelay"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`

	Credentials CredentialsConfig `mapstructure:"credentials"`
	List        ListConfig        `mapstructure:"list"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Watermark   WatermarkConfig   `mapstructure:"watermark"`
	Sink        SinkConfig        `mapstructure:"sink"`
	Server      ServerConfig      `mapstructure:"server"`
}

// CredentialsConfig locates the service account key. File wins over keyring.
type CredentialsConfig struct {
	File            string `mapstructure:"file"`
	KeyringService  string `mapstructure:"keyringService"`
	ImpersonateUser string `mapstructure:"impersonateUser"`
}

type ListConfig struct {
	RootFolder    string   `mapstructure:"rootFolder"`
	BatchSize     int      `mapstructure:"batchSize"`
	PageSize      int      `mapstructure:"pageSize"`
	FromBeginning bool     `mapstructure:"fromBeginning"`
	Recursive     bool     `mapstructure:"recursive"`
	Include       []string `mapstructure:"include"`
	// RateLimit caps page fetches per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rateLimit"`
}

type UploadConfig struct {
	TargetFolder string `mapstructure:"targetFolder"`
	FailIfExists bool   `mapstructure:"failIfExists"`
}

type WatermarkConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisURL  string `mapstructure:"redisURL"`
	KeyPrefix string `mapstructure:"keyPrefix"`
	// ScopeKey overrides the default "list:<rootFolder>" scope.
	ScopeKey string `mapstructure:"scopeKey"`
}

type SinkConfig struct {
	Kind string   `mapstructure:"kind"`
	Path string   `mapstructure:"path"`
	S3   S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	UseSSL    bool   `mapstructure:"useSSL"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Interval between scheduled listing runs; 0 disables the scheduler.
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Profile:        "default",
		LogLevel:       "info",
		MaxRetries:     utils.DefaultMaxRetries,
		RetryBaseDelay: utils.DefaultRetryDelayMs * time.Millisecond,
		RequestTimeout: 60 * time.Second,
		Credentials: CredentialsConfig{
			KeyringService: "gdrvflow",
		},
		List: ListConfig{
			BatchSize: utils.DefaultBatchSize,
			PageSize:  utils.DefaultPageSize,
		},
		Watermark: WatermarkConfig{
			Backend:   BackendSQLite,
			KeyPrefix: "gdrvflow:wm:",
		},
		Sink: SinkConfig{
			Kind: SinkJSONL,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Loader reads configuration with precedence: flags > env > config file > defaults.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader prepares a loader. An empty path searches the config directory.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, path: path}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("profile", d.Profile)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFile", d.LogFile)
	v.SetDefault("maxRetries", d.MaxRetries)
	v.SetDefault("retryBaseDelay", d.RetryBaseDelay)
	v.SetDefault("requestTimeout", d.RequestTimeout)
	v.SetDefault("credentials.file", "")
	v.SetDefault("credentials.keyringService", d.Credentials.KeyringService)
	v.SetDefault("credentials.impersonateUser", "")
	v.SetDefault("list.rootFolder", "")
	v.SetDefault("list.batchSize", d.List.BatchSize)
	v.SetDefault("list.pageSize", d.List.PageSize)
	v.SetDefault("list.fromBeginning", false)
	v.SetDefault("list.recursive", false)
	v.SetDefault("list.include", []string{})
	v.SetDefault("list.rateLimit", 0.0)
	v.SetDefault("upload.targetFolder", "")
	v.SetDefault("upload.failIfExists", false)
	v.SetDefault("watermark.backend", d.Watermark.Backend)
	v.SetDefault("watermark.path", "")
	v.SetDefault("watermark.redisURL", "")
	v.SetDefault("watermark.keyPrefix", d.Watermark.KeyPrefix)
	v.SetDefault("watermark.scopeKey", "")
	v.SetDefault("sink.kind", d.Sink.Kind)
	v.SetDefault("sink.path", "")
	v.SetDefault("sink.s3.endpoint", "")
	v.SetDefault("sink.s3.bucket", "")
	v.SetDefault("sink.s3.prefix", "")
	v.SetDefault("sink.s3.region", "")
	v.SetDefault("sink.s3.accessKey", "")
	v.SetDefault("sink.s3.secretKey", "")
	v.SetDefault("sink.s3.useSSL", true)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.interval", time.Duration(0))
}

// BindFlag makes a command-line flag override the given key when it is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for config key %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads the config file (if any), applies env and flags, and validates.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		l.v.SetConfigFile(l.path)
	} else {
		l.v.SetConfigName(ConfigFileName)
		if dir, err := GetConfigDir(); err == nil {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, utils.ConfigError("config", fmt.Sprintf("failed to load config file: %v", err))
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, utils.ConfigError("config", fmt.Sprintf("failed to decode configuration: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFileUsed reports which file was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks settings shared by every command. Command-specific requirements
// such as a root folder are checked by ValidateList and ValidateUpload.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return utils.ConfigError("maxRetries", fmt.Sprintf("max retries must be between 0 and 10, got: %d", c.MaxRetries))
	}
	if c.RetryBaseDelay < 100*time.Millisecond || c.RetryBaseDelay > time.Minute {
		return utils.ConfigError("retryBaseDelay", fmt.Sprintf("retry base delay must be between 100ms and 1m, got: %s", c.RetryBaseDelay))
	}
	if c.RequestTimeout < time.Second || c.RequestTimeout > time.Hour {
		return utils.ConfigError("requestTimeout", fmt.Sprintf("request timeout must be between 1s and 1h, got: %s", c.RequestTimeout))
	}
	if _, err := logging.ParseLogLevel(c.LogLevel); err != nil {
		return utils.ConfigError("logLevel", fmt.Sprintf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel))
	}

	if c.List.BatchSize <= 0 {
		return utils.ConfigError("list.batchSize", fmt.Sprintf("batch size must be positive, got: %d", c.List.BatchSize))
	}
	if c.List.PageSize <= 0 || c.List.PageSize > utils.MaxPageSize {
		return utils.ConfigError("list.pageSize", fmt.Sprintf("page size must be between 1 and %d, got: %d", utils.MaxPageSize, c.List.PageSize))
	}
	if c.List.RateLimit < 0 {
		return utils.ConfigError("list.rateLimit", "rate limit must not be negative")
	}

	switch c.Watermark.Backend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Watermark.RedisURL == "" {
			return utils.ConfigError("watermark.redisURL", "redis watermark backend requires watermark.redisURL")
		}
	default:
		return utils.ConfigError("watermark.backend", fmt.Sprintf("invalid watermark backend: %s (must be 'sqlite', 'redis', or 'memory')", c.Watermark.Backend))
	}

	switch c.Sink.Kind {
	case SinkJSONL, SinkTable:
	case SinkS3:
		if c.Sink.S3.Endpoint == "" || c.Sink.S3.Bucket == "" {
			return utils.ConfigError("sink.s3", "s3 sink requires sink.s3.endpoint and sink.s3.bucket")
		}
	default:
		return utils.ConfigError("sink.kind", fmt.Sprintf("invalid sink: %s (must be 'jsonl', 'table', or 's3')", c.Sink.Kind))
	}

	if c.Server.Interval < 0 {
		return utils.ConfigError("server.interval", "scheduler interval must not be negative")
	}
	return nil
}

// ValidateList checks the settings a listing run needs.
func (c *Config) ValidateList() error {
	if strings.TrimSpace(c.List.RootFolder) == "" {
		return utils.ConfigError("list.rootFolder", "root folder id is required")
	}
	return nil
}

// ValidateUpload checks the settings an upload needs.
func (c *Config) ValidateUpload() error {
	if strings.TrimSpace(c.Upload.TargetFolder) == "" {
		return utils.ConfigError("upload.targetFolder", "target folder id is required")
	}
	return nil
}

// WatermarkScope returns the key the listing watermark is stored under.
func (c *Config) WatermarkScope() string {
	if c.Watermark.ScopeKey != "" {
		return c.Watermark.ScopeKey
	}
	return "list:" + c.List.RootFolder
}

// WatermarkPath returns the sqlite database path, defaulting into the config dir.
func (c *Config) WatermarkPath() (string, error) {
	if c.Watermark.Path != "" {
		return c.Watermark.Path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watermarks.db"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "gdrvflow"), nil
}
