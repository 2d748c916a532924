// Package config holds the pipeline configuration: the remote query
// endpoint, the output file names and the write policy.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"seedpipe/internal/etl"
)

// DefaultBaseURL is the ATTAINS assessment-by-catchment layer.
const DefaultBaseURL = "https://gispub.epa.gov/arcgis/rest/services/OW/ATTAINS_Assessment/MapServer/6/query"

// DefaultQueryTemplate selects every field of the features whose huc12
// equals the key, without geometry, as pretty JSON.
const DefaultQueryTemplate = "where=huc12+%3D+%27${key}%27&text=&objectIds=&time=" +
	"&timeRelation=esriTimeRelationOverlaps&geometry=" +
	"&geometryType=esriGeometryEnvelope&inSR=" +
	"&spatialRel=esriSpatialRelIntersects&distance=" +
	"&units=esriSRUnit_Foot&relationParam=&outFields=*" +
	"&returnGeometry=false&returnTrueCurves=false" +
	"&maxAllowableOffset=&geometryPrecision=&outSR=&havingClause=" +
	"&returnIdsOnly=false&returnCountOnly=false&orderByFields=" +
	"&groupByFieldsForStatistics=&outStatistics=&returnZ=false" +
	"&returnM=false&gdbVersion=&historicMoment=" +
	"&returnDistinctValues=false&resultOffset=&resultRecordCount=" +
	"&returnExtentOnly=false&sqlFormat=none&datumTransformation=" +
	"&parameterValues=&rangeValues=&quantizationParameters=" +
	"&featureEncoding=esriDefault&f=pjson"

const (
	DefaultFetchOutput = "assessments-by-catchment.json"
	DefaultSeedOutput  = "assessments_by_catchment.sql"
)

// Config holds everything a pipeline run depends on.
type Config struct {
	BaseURL         string        `yaml:"base_url"`
	QueryTemplate   string        `yaml:"query_template"`
	FetchOutput     string        `yaml:"fetch_output"`
	SeedOutput      string        `yaml:"seed_output"`
	RequireExisting bool          `yaml:"require_existing"` // outputs must pre-exist (default true)
	QuoteMode       string        `yaml:"quote_mode"`       // escape, postgres or raw
	Timeout         time.Duration `yaml:"timeout"`          // per request, 0 = none
	RateLimit       float64       `yaml:"rate_limit"`       // requests per second, 0 = unlimited
	HistoryDB       string        `yaml:"history_db"`       // SQLite run history, empty = disabled
	LogLevel        string        `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:         DefaultBaseURL,
		QueryTemplate:   DefaultQueryTemplate,
		FetchOutput:     DefaultFetchOutput,
		SeedOutput:      DefaultSeedOutput,
		RequireExisting: true,
		QuoteMode:       string(etl.QuoteEscape),
		LogLevel:        "info",
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file
// keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SEEDPIPE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SEEDPIPE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SEEDPIPE_FETCH_OUTPUT"); v != "" {
		c.FetchOutput = v
	}
	if v := os.Getenv("SEEDPIPE_SEED_OUTPUT"); v != "" {
		c.SeedOutput = v
	}
	if v := os.Getenv("SEEDPIPE_QUOTE_MODE"); v != "" {
		c.QuoteMode = v
	}
	if v := os.Getenv("SEEDPIPE_HISTORY_DB"); v != "" {
		c.HistoryDB = v
	}
	if v := os.Getenv("SEEDPIPE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SEEDPIPE_REQUIRE_EXISTING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SEEDPIPE_REQUIRE_EXISTING: %w", err)
		}
		c.RequireExisting = b
	}
	if v := os.Getenv("SEEDPIPE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SEEDPIPE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("SEEDPIPE_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SEEDPIPE_RATE_LIMIT: %w", err)
		}
		c.RateLimit = f
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if !strings.Contains(c.QueryTemplate, "${key}") {
		errs = append(errs, errors.New("query_template must contain ${key}"))
	}
	if c.FetchOutput == "" {
		errs = append(errs, errors.New("fetch_output is required"))
	}
	if c.SeedOutput == "" {
		errs = append(errs, errors.New("seed_output is required"))
	}
	if _, err := etl.ParseQuoteMode(c.QuoteMode); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
