package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "config.yaml"

type Config struct {
	Manifest              string `yaml:"manifest" validate:"required"`
	WrapperElement        string `yaml:"wrapper_element" validate:"required"`
	IdentityAttribute     string `yaml:"identity_attribute" validate:"required"`
	IncludeNewEmptyFields bool   `yaml:"include_new_empty_fields"`
	ReportFile            string `yaml:"report_file" validate:"required"`
	DeltaDir              string `yaml:"delta_dir" validate:"required"`
	HistoryDB             string `yaml:"history_db"`
	RunReport             string `yaml:"run_report"`
	LogLevel              string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

func Default() Config {
	return Config{
		Manifest:          "order.txt",
		WrapperElement:    "import",
		IdentityAttribute: "public-id",
		ReportFile:        "changes.txt",
		DeltaDir:          "deltas",
		LogLevel:          "info",
	}
}

// LoadConfig reads path on top of the defaults. A missing file is not an
// error when path is DefaultPath.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	if path == "" {
		path = DefaultPath
	}
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	for key, dst := range map[string]*string{
		"SNAPDIFF_MANIFEST":           &c.Manifest,
		"SNAPDIFF_WRAPPER_ELEMENT":    &c.WrapperElement,
		"SNAPDIFF_IDENTITY_ATTRIBUTE": &c.IdentityAttribute,
		"SNAPDIFF_REPORT_FILE":        &c.ReportFile,
		"SNAPDIFF_DELTA_DIR":          &c.DeltaDir,
		"SNAPDIFF_HISTORY_DB":         &c.HistoryDB,
		"SNAPDIFF_RUN_REPORT":         &c.RunReport,
		"SNAPDIFF_LOG_LEVEL":          &c.LogLevel,
	} {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("SNAPDIFF_INCLUDE_NEW_EMPTY_FIELDS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SNAPDIFF_INCLUDE_NEW_EMPTY_FIELDS %q: %w", v, err)
		}
		c.IncludeNewEmptyFields = b
	}
	return nil
}

// Validate checks required keys and the log level.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %q)", fe.Field(), fe.Tag(), fmt.Sprint(fe.Value()))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
