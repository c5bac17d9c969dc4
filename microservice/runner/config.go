package runner

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/arun-qikfox/qikai-templates/microservice"
	"github.com/arun-qikfox/qikai-templates/pkg/datastore"
)

// Config holds the runner's runtime configuration: the base service
// settings plus the resolved data-provider selection.
type Config struct {
	microservice.BaseConfig
	ServiceName string
	Store       datastore.Config
}

// fileConfig is the optional YAML override file's shape.
type fileConfig struct {
	ServiceName string `yaml:"service_name"`
	LogLevel    string `yaml:"log_level"`
	HTTPPort    string `yaml:"http_port"`
}

// NewConfig resolves configuration from flags, an optional YAML file, and
// the environment. The data-provider settings come from the environment via
// datastore.ConfigFromEnv; provider validation itself happens at store
// construction.
func NewConfig() (*Config, error) {
	cfg := &Config{
		BaseConfig: microservice.BaseConfig{
			LogLevel: "info",
			HTTPPort: ":8080",
		},
		ServiceName: "qikai-runner",
	}

	var configFile string
	flag.StringVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "HTTP listen port for the runner")
	flag.StringVar(&configFile, "config", "", "optional YAML config file")
	flag.Parse()

	if configFile != "" {
		if err := applyFileConfig(cfg, configFile); err != nil {
			return nil, err
		}
	}

	cfg.ProjectID = os.Getenv("PROJECT_ID")
	if name := os.Getenv("SERVICE_NAME"); name != "" {
		cfg.ServiceName = name
	}

	// Cloud Run's PORT variable takes highest precedence.
	if port := os.Getenv("PORT"); port != "" {
		newPort := ":" + port
		log.Info().Str("old_http_port", cfg.HTTPPort).Str("new_http_port", newPort).Msg("Overriding runner HTTP port with PORT environment variable.")
		cfg.HTTPPort = newPort
	}

	cfg.Store = datastore.ConfigFromEnv(nil, log.Logger)
	return cfg, nil
}

func applyFileConfig(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.ServiceName != "" {
		cfg.ServiceName = fc.ServiceName
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.HTTPPort != "" {
		cfg.HTTPPort = fc.HTTPPort
	}
	return nil
}
