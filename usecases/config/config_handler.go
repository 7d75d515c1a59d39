//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	entcfg "github.com/weaviate/img2address/entities/config"
	enterrors "github.com/weaviate/img2address/entities/errors"
)

// DefaultConfigFile is read when no config file is given. It may be absent.
const DefaultConfigFile string = "./img2address.yaml"

const (
	DefaultInferenceURL     = "http://localhost:8000"
	DefaultModelName        = "dinov2_vitb14"
	DefaultModelDimensions  = 768
	DefaultInferenceTimeout = 60 * time.Second

	DefaultModelLoadMaxAttempts = 3
	DefaultModelLoadBackoff     = 10 * time.Second

	DefaultIndexName          = "paris-18"
	DefaultIndexControllerURL = "https://api.pinecone.io"
	DefaultIndexTimeout       = 30 * time.Second
	DefaultBreakerFailures    = 5
	DefaultBreakerOpenTimeout = 30 * time.Second

	DefaultTopK     = 5
	MaxTopK         = 10000
	DefaultCacheTTL = 10 * time.Minute

	DefaultMonitoringPort = 2112
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// Flags are input options
type Flags struct {
	ConfigFile     string `long:"config-file" description:"path to a .yaml or .json config file (default: ./img2address.yaml)"`
	InferenceURL   string `long:"inference-url" description:"origin of the KServe v2 inference server"`
	IndexName      string `long:"index-name" description:"name of the Pinecone index to query"`
	ExhaustiveScan bool   `long:"exhaustive-scan" description:"rank every fetched candidate instead of stopping at top-k distinct addresses"`
}

type Config struct {
	Inference   Inference   `json:"inference" yaml:"inference"`
	ModelLoad   ModelLoad   `json:"model_load" yaml:"model_load"`
	Index       Index       `json:"index" yaml:"index"`
	Query       Query       `json:"query" yaml:"query"`
	ResultCache ResultCache `json:"result_cache" yaml:"result_cache"`
	Monitoring  Monitoring  `json:"monitoring" yaml:"monitoring"`
	Logging     Logging     `json:"logging" yaml:"logging"`
}

type Inference struct {
	URL               string   `json:"url" yaml:"url"`
	Model             string   `json:"model" yaml:"model"`
	Version           string   `json:"version" yaml:"version"`
	InputName         string   `json:"input_name" yaml:"input_name"`
	OutputName        string   `json:"output_name" yaml:"output_name"`
	Dimensions        int      `json:"dimensions" yaml:"dimensions"`
	BinaryData        bool     `json:"binary_data" yaml:"binary_data"`
	SerializeRequests bool     `json:"serialize_requests" yaml:"serialize_requests"`
	Timeout           Duration `json:"timeout" yaml:"timeout"`
}

type ModelLoad struct {
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
	Backoff     Duration `json:"backoff" yaml:"backoff"`
}

type Index struct {
	APIKey           string         `json:"api_key" yaml:"api_key"`
	Name             string         `json:"name" yaml:"name"`
	Environment      string         `json:"environment" yaml:"environment"`
	Host             string         `json:"host" yaml:"host"`
	Namespace        string         `json:"namespace" yaml:"namespace"`
	ControllerURL    string         `json:"controller_url" yaml:"controller_url"`
	QueriesPerSecond float64        `json:"queries_per_second" yaml:"queries_per_second"`
	Timeout          Duration       `json:"timeout" yaml:"timeout"`
	CircuitBreaker   CircuitBreaker `json:"circuit_breaker" yaml:"circuit_breaker"`
}

type CircuitBreaker struct {
	Enabled             bool     `json:"enabled" yaml:"enabled"`
	ConsecutiveFailures uint32   `json:"consecutive_failures" yaml:"consecutive_failures"`
	OpenTimeout         Duration `json:"open_timeout" yaml:"open_timeout"`
}

type Query struct {
	DefaultTopK       int  `json:"default_top_k" yaml:"default_top_k"`
	DefaultMaxResults int  `json:"default_max_results" yaml:"default_max_results"`
	ExhaustiveScan    bool `json:"exhaustive_scan" yaml:"exhaustive_scan"`
}

type ResultCache struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	TTL     Duration `json:"ttl" yaml:"ttl"`
}

type Monitoring struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Defaults is the configuration before any file, environment variable or
// flag is applied.
func Defaults() Config {
	return Config{
		Inference: Inference{
			URL:        DefaultInferenceURL,
			Model:      DefaultModelName,
			Dimensions: DefaultModelDimensions,
			Timeout:    Duration(DefaultInferenceTimeout),
		},
		ModelLoad: ModelLoad{
			MaxAttempts: DefaultModelLoadMaxAttempts,
			Backoff:     Duration(DefaultModelLoadBackoff),
		},
		Index: Index{
			Name:          DefaultIndexName,
			ControllerURL: DefaultIndexControllerURL,
			Timeout:       Duration(DefaultIndexTimeout),
			CircuitBreaker: CircuitBreaker{
				ConsecutiveFailures: DefaultBreakerFailures,
				OpenTimeout:         Duration(DefaultBreakerOpenTimeout),
			},
		},
		Query: Query{
			DefaultTopK: DefaultTopK,
		},
		ResultCache: ResultCache{
			TTL: Duration(DefaultCacheTTL),
		},
		Monitoring: Monitoring{
			Port: DefaultMonitoringPort,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Validate the configuration. Every error wraps enterrors.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.Inference.Validate(); err != nil {
		return configErr(err)
	}
	if c.ModelLoad.MaxAttempts < 1 {
		return configErr(fmt.Errorf("model_load.max_attempts must be at least 1, got %d", c.ModelLoad.MaxAttempts))
	}
	if err := c.Index.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Query.Validate(); err != nil {
		return configErr(err)
	}
	if c.ResultCache.Enabled && c.ResultCache.TTL <= 0 {
		return configErr(fmt.Errorf("result_cache.ttl must be positive when the cache is enabled"))
	}
	if c.Monitoring.Enabled && (c.Monitoring.Port <= 0 || c.Monitoring.Port > 65535) {
		return configErr(fmt.Errorf("monitoring.port %d is not a valid port", c.Monitoring.Port))
	}
	if err := c.Logging.Validate(); err != nil {
		return configErr(err)
	}
	return nil
}

func (i Inference) Validate() error {
	if err := validateURL("inference.url", i.URL); err != nil {
		return err
	}
	if i.Model == "" {
		return fmt.Errorf("inference.model must not be empty")
	}
	if i.Dimensions < 0 {
		return fmt.Errorf("inference.dimensions must not be negative, got %d", i.Dimensions)
	}
	return nil
}

func (i Index) Validate() error {
	if i.APIKey == "" {
		return fmt.Errorf("no Pinecone API key, set PINECONE_API_KEY")
	}
	if i.Name == "" {
		return fmt.Errorf("no Pinecone index name, set PINECONE_INDEX_NAME")
	}
	if i.ControllerURL != "" {
		if err := validateURL("index.controller_url", i.ControllerURL); err != nil {
			return err
		}
	}
	if i.QueriesPerSecond < 0 {
		return fmt.Errorf("index.queries_per_second must not be negative")
	}
	return nil
}

func (q Query) Validate() error {
	if q.DefaultTopK < 1 || q.DefaultTopK > MaxTopK {
		return fmt.Errorf("query.default_top_k must be between 1 and %d, got %d", MaxTopK, q.DefaultTopK)
	}
	if q.DefaultMaxResults < 0 {
		return fmt.Errorf("query.default_max_results must not be negative, got %d", q.DefaultMaxResults)
	}
	return nil
}

func (l Logging) Validate() error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch l.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("logging.format must be one of [\"json\", \"text\"], got %q", l.Format)
	}
}

func validateURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", name, value)
	}
	return nil
}

// LoadConfig from config locations. The load order for configuration values
// is the following
// 1. Defaults
// 2. Config file
// 3. Environment variables
// 4. Command line flags
// If a config option is specified multiple times in different locations, the
// latest one will be used in this order.
func LoadConfig(flags *Flags, logger logrus.FieldLogger) (*Config, error) {
	config := Defaults()

	configFileName := flags.ConfigFile
	explicit := configFileName != ""
	if !explicit {
		configFileName = DefaultConfigFile
	}

	file, err := os.ReadFile(configFileName)
	if err != nil && explicit {
		return nil, configErr(errors.Wrap(err, "read config file"))
	}
	if len(file) > 0 {
		logger.WithField("action", "config_load").WithField("config_file_path", configFileName).
			Info("loading config file")
		if err := parseConfigFile(file, configFileName, &config); err != nil {
			return nil, configErr(err)
		}
	}

	if err := FromEnv(&config); err != nil {
		return nil, configErr(err)
	}

	fromFlags(&config, flags)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func parseConfigFile(file []byte, name string, config *Config) error {
	m := regexp.MustCompile(`.*\.(\w+)$`).FindStringSubmatch(name)
	if len(m) < 2 {
		return fmt.Errorf("config file does not have a file ending, got '%s'", name)
	}

	switch m[1] {
	case "json":
		err := json.Unmarshal(file, config)
		if err != nil {
			return fmt.Errorf("error unmarshalling the json config file: %w", err)
		}
	case "yaml", "yml":
		err := yaml.Unmarshal(file, config)
		if err != nil {
			return fmt.Errorf("error unmarshalling the yaml config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file extension '%s', use .yaml or .json", m[1])
	}

	return nil
}

// fromFlags parses values from flags given as parameter and overrides values in the config
func fromFlags(config *Config, flags *Flags) {
	if flags.InferenceURL != "" {
		config.Inference.URL = flags.InferenceURL
	}
	if flags.IndexName != "" {
		config.Index.Name = flags.IndexName
	}
	if flags.ExhaustiveScan {
		config.Query.ExhaustiveScan = true
	}
}

func configErr(err error) error {
	return enterrors.NewConfiguration("invalid config: %v", err)
}

// Duration reads "30s" style strings as well as plain numbers of seconds
// from config files.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch typed := v.(type) {
	case float64:
		*d = Duration(time.Duration(typed * float64(time.Second)))
		return nil
	case string:
		parsed, err := entcfg.ParseDuration("duration", typed)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := entcfg.ParseDuration("duration", value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
