package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	IPFS      IPFSConfig
	Staging   StagingConfig
	Processor ProcessorConfig
	Log       LogConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// RunProcessor embeds the pinning processor in the API server process.
	// Disable it when running cmd/processor as a separate deployment.
	RunProcessor bool `mapstructure:"run_processor"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type IPFSConfig struct {
	APIAddr string        `mapstructure:"api_addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StagingConfig selects where raw uploads wait for the processor.
type StagingConfig struct {
	Backend string `mapstructure:"backend"` // local, minio
	Dir     string `mapstructure:"dir"`     // local backend
	Bucket  string `mapstructure:"bucket"`  // minio backend
}

type ProcessorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	StaleTimeout  time.Duration `mapstructure:"stale_timeout"`
	PinsPerSecond float64       `mapstructure:"pins_per_second"`
	CleanupStaged bool          `mapstructure:"cleanup_staged"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// VerifyMultihash rejects malformed client-supplied identifiers on the
	// pre-hashed registration path.
	VerifyMultihash bool `mapstructure:"verify_multihash"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Staging.Backend == "" {
		config.Staging.Backend = "local"
	}
	if config.Staging.Dir == "" {
		config.Staging.Dir = "./uploads"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}
	if config.Log.Output == "" {
		config.Log.Output = "console"
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
