package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	// Reading backend
	APIBaseURL           string        `koanf:"api_base_url" json:"api_base_url"`
	APITimeout           time.Duration `koanf:"api_timeout" json:"api_timeout"`
	APIRequestsPerSecond float64       `koanf:"api_requests_per_second" json:"api_requests_per_second"`
	APIBurst             int           `koanf:"api_burst" json:"api_burst"`
	// APIToken is a service credential used by the cleanup worker and the
	// terminal client. It's optional for the server.
	APIToken string `koanf:"api_token" json:"-"`

	// Transitions
	DeleteRetryAttempts int           `koanf:"delete_retry_attempts" json:"delete_retry_attempts"`
	DeleteRetryDelay    time.Duration `koanf:"delete_retry_delay" json:"delete_retry_delay"`
	CleanupMaxAttempts  int           `koanf:"cleanup_max_attempts" json:"cleanup_max_attempts"`
	CleanupInterval     time.Duration `koanf:"cleanup_interval" json:"cleanup_interval"`

	// Cleanup journal database
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" json:"-"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" json:"-"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" json:"-"`
	DatabaseDebug             bool          `koanf:"database_debug" json:"-"`
	DatabaseFilePath          string        `koanf:"database_file_path" json:"-"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" json:"-"`

	Environment     string `koanf:"environment" json:"environment"`
	Hostname        string `koanf:"-" json:"-"`
	ServerHost      string `koanf:"server_host" json:"-"`
	ServerPort      int    `koanf:"server_port" json:"-"`
	WorkerProcesses int    `koanf:"worker_processes" json:"worker_processes"`
}

const (
	environmentENV    = "ENVIRONMENT"
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/config.yaml"
)

// requiredFields must be non-zero after loading.
var requiredFields = []string{"APIBaseURL", "DatabaseFilePath"}

// New loads the config from defaults, then the YAML file at $CONFIG_FILE (if it
// exists), then environment variables named after the snake_case keys.
func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := defaultConfig()
	cfg.Hostname = hostname

	environment := os.Getenv(environmentENV)
	switch environment {
	case "development":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	err = k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := checkRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a config suitable for tests: in-memory database, local
// server, and no retry delays worth waiting for.
func NewForTest() *Config {
	cfg := defaultConfig()
	loadTestConfig(cfg)
	cfg.APIBaseURL = "http://127.0.0.1"
	cfg.DatabaseFilePath = ":memory:"
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		APITimeout:                10 * time.Second,
		APIRequestsPerSecond:      10,
		APIBurst:                  20,
		DeleteRetryAttempts:       2,
		DeleteRetryDelay:          500 * time.Millisecond,
		CleanupMaxAttempts:        5,
		CleanupInterval:           30 * time.Second,
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		ServerHost:                "0.0.0.0",
		ServerPort:                7431,
		WorkerProcesses:           1,
	}
}

func checkRequired(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	var missing []string
	for _, name := range requiredFields {
		if v.FieldByName(name).IsZero() {
			key := toSnakeCase(name)
			missing = append(missing, strings.ToUpper(key)+" (env) or "+key+" (config file)")
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
