// Package config loads and validates the application configuration from
// YAML and generates its JSON schema for editor tooling.
package config

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-signal/internal/pipeline"
	"github.com/rxtech-lab/argo-signal/internal/strategy"
	"github.com/rxtech-lab/argo-signal/internal/types"
	"github.com/rxtech-lab/argo-signal/pkg/errors"
)

// SourceProvider selects the realtime candle feed.
type SourceProvider string

const (
	SourceBinance SourceProvider = "binance"
	SourceOKX     SourceProvider = "okx"
)

// SourceConfig configures historical storage and the realtime feed.
type SourceConfig struct {
	Provider SourceProvider `yaml:"provider" json:"provider" jsonschema:"title=Provider,enum=binance,enum=okx" validate:"required,oneof=binance okx"`

	// DataPath is the DuckDB database holding historical candles.
	DataPath string `yaml:"data_path" json:"data_path" jsonschema:"title=Data Path,description=DuckDB database file for historical candles"`

	// PolygonApiKey enables Polygon downloads; unused by the live feed.
	PolygonApiKey string `yaml:"polygon_api_key,omitempty" json:"polygon_api_key,omitempty"`

	// OKXEndpoint overrides the default OKX websocket endpoint.
	OKXEndpoint string `yaml:"okx_endpoint,omitempty" json:"okx_endpoint,omitempty"`
}

// RedisConfig enables the Redis-backed dedup gate. When absent the engine
// uses the in-process gate.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs" json:"addrs" validate:"required,min=1"`
	Password string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int      `yaml:"db" json:"db" validate:"gte=0"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" validate:"required"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Symbols   []string           `yaml:"symbols" json:"symbols" jsonschema:"title=Symbols,description=Symbols to trade" validate:"required,min=1"`
	Timeframe string             `yaml:"timeframe" json:"timeframe" jsonschema:"title=Timeframe,description=Candle interval such as 1m or 4h" validate:"required"`
	Strategy  types.StrategyType `yaml:"strategy_type" json:"strategy_type" validate:"required"`

	InitialFunds float64 `yaml:"initial_funds" json:"initial_funds" validate:"gt=0"`

	Pipeline pipeline.Config  `yaml:"pipeline" json:"pipeline"`
	Signal   strategy.Config  `yaml:"signal" json:"signal"`
	Risk     types.RiskConfig `yaml:"risk" json:"risk"`

	Source SourceConfig `yaml:"source" json:"source"`
	Redis  *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	Server ServerConfig `yaml:"server" json:"server"`
}

// Default returns the configuration used when fields are omitted from the
// YAML file.
func Default() AppConfig {
	return AppConfig{
		Symbols:      nil,
		Timeframe:    "1m",
		Strategy:     types.StrategyTypeVegas,
		InitialFunds: 100,
		Pipeline:     pipeline.DefaultConfig(),
		Signal:       strategy.DefaultConfig(),
		Risk:         types.DefaultRiskConfig(),
		Source: SourceConfig{
			Provider: SourceBinance,
			DataPath: "candles.duckdb",
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Parse unmarshals YAML over the defaults and validates the result. The
// signal tuning defaults follow the selected strategy kind; a weights block
// in the file pins the tuning instead.
func Parse(data []byte) (AppConfig, error) {
	cfg := Default()

	var head struct {
		Strategy string `yaml:"strategy"`
		Signal   struct {
			Weights map[string]float64 `yaml:"weights"`
		} `yaml:"signal"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return AppConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config yaml", err)
	}
	if head.Strategy != "" && len(head.Signal.Weights) == 0 {
		kind, err := types.ParseStrategyType(head.Strategy)
		if err != nil {
			return AppConfig{}, err
		}
		tuned, err := strategy.ConfigForType(kind)
		if err != nil {
			return AppConfig{}, err
		}
		cfg.Signal = tuned
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config yaml", err)
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return Parse(data)
}

// Validate checks the configuration tree, including the nested strategy and
// risk sections.
func (c *AppConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if _, err := types.ParseStrategyType(string(c.Strategy)); err != nil {
		return err
	}

	if err := c.Risk.Validate(); err != nil {
		return err
	}

	if _, err := strategy.New(c.Signal); err != nil {
		return err
	}

	return nil
}

// Schema returns the JSON schema for AppConfig.
func Schema() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true

	schema := r.Reflect(&AppConfig{})

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal schema", err)
	}

	return string(data), nil
}
