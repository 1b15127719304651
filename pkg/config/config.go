package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config is the service configuration read from YAML
type Config struct {
	Logger    Logger    `yaml:"logger"`
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Lock      Lock      `yaml:"lock"`
	Directory Directory `yaml:"directory"`
	Notify    Notify    `yaml:"notify"`
	Workflow  Workflow  `yaml:"workflow"`
}

type Logger struct {
	Level       string `yaml:"level"`
	JSONFormat  *bool  `yaml:"json_format"`
	DisableTime *bool  `yaml:"disable_time"`
}

type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Storage struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

type Lock struct {
	Driver        string        `yaml:"driver"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type Directory struct {
	BaseURL    string     `yaml:"base_url"`
	Token      string     `yaml:"token"`
	HTTPClient HTTPClient `yaml:"http_client"`
}

type Notify struct {
	WebhookURL string     `yaml:"webhook_url"`
	HTTPClient HTTPClient `yaml:"http_client"`
}

type HTTPClient struct {
	Debug            bool          `yaml:"debug"`
	RetryCount       int           `yaml:"retry_count"`
	RetryWaitTime    time.Duration `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration `yaml:"retry_max_wait_time"`
	Timeout          time.Duration `yaml:"timeout"`
}

type Workflow struct {
	MaxRetries  *int          `yaml:"max_retries"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	LockMemory      = "memory"
	LockRedis       = "redis"
)

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// NewConfig loads, defaults and validates the configuration at configPath.
// An empty path yields the defaults.
func NewConfig(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		if err := LoadYAML(configPath, config); err != nil {
			return nil, err
		}
	}

	ApplyDefaults(config)
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}
