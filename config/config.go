// config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/petshop/backend/errors"
)

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig selects the SQL dialect and connection. URL takes precedence
// over the discrete fields; DATABASE_URL overrides both.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql", "postgres" or "sqlite"
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite only
}

type BigQueryConfig struct {
	Project            string `yaml:"project"`
	DownloadsTable     string `yaml:"downloads_table"`
	MaximumBytesBilled int64  `yaml:"maximum_bytes_billed"`
	JobIDPrefix        string `yaml:"job_id_prefix"`
}

type ImportConfig struct {
	Source            string `yaml:"source"` // "bigquery" or "csv"
	CommitEveryNthRow int    `yaml:"commit_every_nth_row"`
	NumberOfSplits    int    `yaml:"number_of_splits"`
	ParallelWindows   int    `yaml:"parallel_windows"`
	CSVPath           string `yaml:"csv_path"`
	CSVURL            string `yaml:"csv_url"`
}

type PyPIConfig struct {
	SimpleIndexURL string `yaml:"simple_index_url"`
	JSONAPIURL     string `yaml:"json_api_url"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Import   ImportConfig   `yaml:"import"`
	PyPI     PyPIConfig     `yaml:"pypi"`
}

const (
	DefaultCommitEveryNthRow = 5000
	DefaultNumberOfSplits    = 5
	// BigQuery refuses the job instead of billing more than this (< 1 TiB).
	DefaultMaximumBytesBilled = 1024*1024*1024*1024 - 1
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			Host:   "127.0.0.1",
			Port:   "3306",
			DBName: "petshop",
		},
		BigQuery: BigQueryConfig{
			DownloadsTable:     "bigquery-public-data.pypi.file_downloads",
			MaximumBytesBilled: DefaultMaximumBytesBilled,
			JobIDPrefix:        "import-downloads",
		},
		Import: ImportConfig{
			Source:            "bigquery",
			CommitEveryNthRow: DefaultCommitEveryNthRow,
			NumberOfSplits:    DefaultNumberOfSplits,
			ParallelWindows:   1,
			CSVPath:           "./temp_data/downloads.csv",
		},
		PyPI: PyPIConfig{
			SimpleIndexURL: "https://pypi.org/simple/",
			JSONAPIURL:     "https://pypi.org/pypi",
		},
	}
}

// LoadConfig loads dotenv files, reads the YAML file at configPath on top of
// the defaults (an empty path skips the file) and applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	cfg := Default()
	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenv reads .env, or .env-test when RUN_ENV=test. Missing files are fine;
// variables already set in the process environment win.
func loadDotenv() error {
	envFile := ".env"
	if os.Getenv("RUN_ENV") == "test" {
		envFile = ".env-test"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		c.BigQuery.Project = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("COMMIT_EVERY_NTH_ROW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "COMMIT_EVERY_NTH_ROW")
		}
		c.Import.CommitEveryNthRow = n
	}
	return nil
}

// Validate checks the values the import pipeline depends on.
func (c *Config) Validate() error {
	if c.Import.CommitEveryNthRow < 1 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "import.commit_every_nth_row must be >= 1, got %d", c.Import.CommitEveryNthRow)
	}
	if c.Import.NumberOfSplits < 1 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "import.number_of_splits must be >= 1, got %d", c.Import.NumberOfSplits)
	}
	if c.Import.ParallelWindows < 1 {
		c.Import.ParallelWindows = 1
	}
	switch c.Import.Source {
	case "bigquery", "csv":
	default:
		return apperrors.New(apperrors.ErrCodeInvalidInput, "import.source must be 'bigquery' or 'csv', got %q", c.Import.Source)
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		if c.Database.URL == "" {
			return apperrors.New(apperrors.ErrCodeInvalidInput, "database.driver must be mysql, postgres or sqlite, got %q", c.Database.Driver)
		}
	}
	return nil
}
