package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration. Values are layered:
// struct defaults, then an optional YAML file, then COURSECHECK_* environment
// variables, which win.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Rules   RulesConfig   `yaml:"rules" envconfig:"RULES"`
	URL     URLConfig     `yaml:"url_check" envconfig:"URL"`
	Sheets  SheetsConfig  `yaml:"sheets" envconfig:"SHEETS"`
	Export  ExportConfig  `yaml:"export" envconfig:"EXPORT"`
}

// ServerConfig contains HTTP server configuration for the web shell.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// RulesConfig parameterizes the rule engine. None of these values are
// hardcoded in the rule logic itself.
type RulesConfig struct {
	// Delimiter separates multi-valued cells (intake ids, start dates).
	Delimiter string `yaml:"delimiter" envconfig:"DELIMITER"`
	// LowercaseWords must stay lowercase inside a course name unless they
	// open it.
	LowercaseWords []string `yaml:"lowercase_words" envconfig:"LOWERCASE_WORDS"`
	// HeaderAliases maps known historical header spellings onto canonical
	// field names. Exact header matches always win over aliases.
	HeaderAliases     map[string]string `yaml:"header_aliases"`
	AllowedShow       []string          `yaml:"allowed_show" envconfig:"ALLOWED_SHOW"`
	AllowedStatus     []string          `yaml:"allowed_status" envconfig:"ALLOWED_STATUS"`
	AllowedStudyModes []string          `yaml:"allowed_study_modes" envconfig:"ALLOWED_STUDY_MODES"`
}

// URLConfig parameterizes the reachability checker.
type URLConfig struct {
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Retries    int           `yaml:"retries" envconfig:"RETRIES"`
	Workers    int           `yaml:"workers" envconfig:"WORKERS"`
	RatePerSec float64       `yaml:"rate_per_sec" envconfig:"RATE_PER_SEC"`
	UserAgent  string        `yaml:"user_agent" envconfig:"USER_AGENT"`
}

// SheetsConfig contains Google Sheets connector configuration.
type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	APIKey          string `yaml:"api_key" envconfig:"API_KEY"`
	Range           string `yaml:"range" envconfig:"RANGE"`
}

// ExportConfig contains export output configuration.
type ExportConfig struct {
	Dir string `yaml:"dir" envconfig:"DIR"`
}

// DefaultHeaderAliases returns the known historical header spellings seen in
// catalog extracts. The map is rebuilt on every call so callers may mutate
// their copy.
func DefaultHeaderAliases() map[string]string {
	return map[string]string{
		"Instituti":         "Institution Id",
		"Course I":          "Course Id",
		"Course":            "Course Name",
		"L3 Taggi":          "L3 Tagging",
		"Course sCourse":    "Course Start Date",
		"Course start date": "Course Start Date",
		"Study M":           "Study Mode",
	}
}

// Default returns the built-in configuration. Load layers an optional YAML
// file and then COURSECHECK_* environment variables on top of it. Header
// aliases are filled in separately so a file-supplied table replaces the
// defaults instead of merging with them.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  32 << 20,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/coursecheck.log",
		},
		Rules: RulesConfig{
			Delimiter:         ",",
			LowercaseWords:    []string{"and", "or", "of", "the", "in", "for", "to", "a", "an"},
			AllowedShow:       []string{"Yes", "No"},
			AllowedStatus:     []string{"Open", "Closed"},
			AllowedStudyModes: []string{"Full time", "Part time"},
		},
		URL: URLConfig{
			Timeout:    10 * time.Second,
			Retries:    1,
			Workers:    8,
			RatePerSec: 20,
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Sheets: SheetsConfig{Range: "A:Z"},
		Export: ExportConfig{Dir: "exports"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence. Environment variables only
// override fields they actually set, so file values survive unless the
// operator overrides them.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("COURSECHECK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if len(cfg.Rules.HeaderAliases) == 0 {
		cfg.Rules.HeaderAliases = DefaultHeaderAliases()
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate rejects configurations the engine cannot run with. A broken
// configuration is a system error, not a data error.
func (c *Config) validate() error {
	if c.Rules.Delimiter == "" {
		return fmt.Errorf("rules.delimiter must not be empty")
	}
	if c.URL.Timeout <= 0 {
		return fmt.Errorf("url_check.timeout must be positive, got %v", c.URL.Timeout)
	}
	if c.URL.Retries < 0 {
		return fmt.Errorf("url_check.retries must not be negative, got %d", c.URL.Retries)
	}
	if c.URL.Workers <= 0 {
		return fmt.Errorf("url_check.workers must be positive, got %d", c.URL.Workers)
	}
	if len(c.Rules.AllowedShow) == 0 || len(c.Rules.AllowedStatus) == 0 || len(c.Rules.AllowedStudyModes) == 0 {
		return fmt.Errorf("rules allowed value sets must not be empty")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
