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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enterrors "github.com/weaviate/img2address/entities/errors"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() Config {
	c := Defaults()
	c.Index.APIKey = "pc-key"
	return c
}

func TestDefaults(t *testing.T) {
	c := Defaults()

	assert.Equal(t, "http://localhost:8000", c.Inference.URL)
	assert.Equal(t, "dinov2_vitb14", c.Inference.Model)
	assert.Equal(t, 768, c.Inference.Dimensions)
	assert.Equal(t, time.Minute, c.Inference.Timeout.Std())
	assert.Equal(t, 3, c.ModelLoad.MaxAttempts)
	assert.Equal(t, 10*time.Second, c.ModelLoad.Backoff.Std())
	assert.Equal(t, "paris-18", c.Index.Name)
	assert.Equal(t, "https://api.pinecone.io", c.Index.ControllerURL)
	assert.False(t, c.Index.CircuitBreaker.Enabled)
	assert.Equal(t, 5, c.Query.DefaultTopK)
	assert.False(t, c.Query.ExhaustiveScan)
	assert.False(t, c.ResultCache.Enabled)
	assert.False(t, c.Monitoring.Enabled)
	assert.Equal(t, 2112, c.Monitoring.Port)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "json", c.Logging.Format)

	// no API key by default
	err := c.Validate()
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, enterrors.ErrConfiguration))
	assert.Contains(t, err.Error(), "PINECONE_API_KEY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing index name",
			mutate:  func(c *Config) { c.Index.Name = "" },
			wantErr: "PINECONE_INDEX_NAME",
		},
		{
			name:    "inference url without scheme",
			mutate:  func(c *Config) { c.Inference.URL = "localhost:8000" },
			wantErr: "inference.url",
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.Inference.Model = "" },
			wantErr: "inference.model",
		},
		{
			name:    "negative dimensions",
			mutate:  func(c *Config) { c.Inference.Dimensions = -1 },
			wantErr: "inference.dimensions",
		},
		{
			name:    "no load attempt",
			mutate:  func(c *Config) { c.ModelLoad.MaxAttempts = 0 },
			wantErr: "model_load.max_attempts",
		},
		{
			name:    "top k too large",
			mutate:  func(c *Config) { c.Query.DefaultTopK = MaxTopK + 1 },
			wantErr: "query.default_top_k",
		},
		{
			name:    "negative max results",
			mutate:  func(c *Config) { c.Query.DefaultMaxResults = -5 },
			wantErr: "query.default_max_results",
		},
		{
			name: "cache without ttl",
			mutate: func(c *Config) {
				c.ResultCache.Enabled = true
				c.ResultCache.TTL = 0
			},
			wantErr: "result_cache.ttl",
		},
		{
			name: "monitoring port out of range",
			mutate: func(c *Config) {
				c.Monitoring.Enabled = true
				c.Monitoring.Port = 70000
			},
			wantErr: "monitoring.port",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "chatty" },
			wantErr: "logging.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.True(t, errors.Is(err, enterrors.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseConfigFile(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		c := Defaults()
		err := parseConfigFile([]byte(`
inference:
  url: http://triton:8000
  binary_data: true
  timeout: 90s
index:
  name: montmartre
  circuit_breaker:
    enabled: true
    open_timeout: 45
query:
  default_top_k: 8
result_cache:
  enabled: true
  ttl: 1m
`), "img2address.yaml", &c)
		require.Nil(t, err)

		assert.Equal(t, "http://triton:8000", c.Inference.URL)
		assert.True(t, c.Inference.BinaryData)
		assert.Equal(t, 90*time.Second, c.Inference.Timeout.Std())
		assert.Equal(t, "montmartre", c.Index.Name)
		assert.True(t, c.Index.CircuitBreaker.Enabled)
		assert.Equal(t, 45*time.Second, c.Index.CircuitBreaker.OpenTimeout.Std())
		assert.Equal(t, 8, c.Query.DefaultTopK)
		assert.Equal(t, time.Minute, c.ResultCache.TTL.Std())

		// untouched values keep their defaults
		assert.Equal(t, "dinov2_vitb14", c.Inference.Model)
		assert.Equal(t, uint32(DefaultBreakerFailures), c.Index.CircuitBreaker.ConsecutiveFailures)
	})

	t.Run("json", func(t *testing.T) {
		c := Defaults()
		err := parseConfigFile([]byte(`{
			"inference": {"model": "dinov2_vits14", "dimensions": 384, "timeout": 15},
			"model_load": {"max_attempts": 5, "backoff": "2s"},
			"logging": {"level": "debug", "format": "text"}
		}`), "img2address.json", &c)
		require.Nil(t, err)

		assert.Equal(t, "dinov2_vits14", c.Inference.Model)
		assert.Equal(t, 384, c.Inference.Dimensions)
		assert.Equal(t, 15*time.Second, c.Inference.Timeout.Std())
		assert.Equal(t, 5, c.ModelLoad.MaxAttempts)
		assert.Equal(t, 2*time.Second, c.ModelLoad.Backoff.Std())
		assert.Equal(t, "debug", c.Logging.Level)
		assert.Equal(t, "text", c.Logging.Format)
	})

	t.Run("invalid duration", func(t *testing.T) {
		c := Defaults()
		err := parseConfigFile([]byte("inference:\n  timeout: soon\n"), "img2address.yaml", &c)
		assert.NotNil(t, err)
	})

	t.Run("broken json", func(t *testing.T) {
		c := Defaults()
		err := parseConfigFile([]byte(`{"inference": `), "img2address.json", &c)
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "error unmarshalling the json config file")
	})

	t.Run("unknown extension", func(t *testing.T) {
		c := Defaults()
		err := parseConfigFile([]byte(`url = "x"`), "img2address.toml", &c)
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "unsupported config file extension")
	})

	t.Run("no extension", func(t *testing.T) {
		c := Defaults()
		err := parseConfigFile([]byte(`{}`), "img2address", &c)
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "does not have a file ending")
	})
}

func TestLoadConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("file, env and flags in that order", func(t *testing.T) {
		path := writeConfigFile(t, "img2address.yaml", `
inference:
  url: http://from-file:8000
  model: dinov2_vitl14
index:
  name: from-file
query:
  default_top_k: 7
`)
		t.Setenv("PINECONE_API_KEY", "pc-key")
		t.Setenv("PINECONE_INDEX_NAME", "from-env")
		t.Setenv("INFERENCE_URL", "http://from-env:8000")

		c, err := LoadConfig(&Flags{ConfigFile: path, InferenceURL: "http://from-flag:8000"}, logger)
		require.Nil(t, err)

		assert.Equal(t, "http://from-flag:8000", c.Inference.URL)
		assert.Equal(t, "from-env", c.Index.Name)
		assert.Equal(t, "dinov2_vitl14", c.Inference.Model)
		assert.Equal(t, 7, c.Query.DefaultTopK)
		assert.Equal(t, "pc-key", c.Index.APIKey)
	})

	t.Run("exhaustive scan flag", func(t *testing.T) {
		t.Setenv("PINECONE_API_KEY", "pc-key")

		c, err := LoadConfig(&Flags{ExhaustiveScan: true, IndexName: "from-flag"}, logger)
		require.Nil(t, err)
		assert.True(t, c.Query.ExhaustiveScan)
		assert.Equal(t, "from-flag", c.Index.Name)
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Setenv("PINECONE_API_KEY", "pc-key")

		_, err := LoadConfig(&Flags{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}, logger)
		require.NotNil(t, err)
		assert.True(t, errors.Is(err, enterrors.ErrConfiguration))
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("PINECONE_API_KEY", "")

		_, err := LoadConfig(&Flags{}, logger)
		require.NotNil(t, err)
		assert.True(t, errors.Is(err, enterrors.ErrConfiguration))
		assert.Contains(t, err.Error(), "PINECONE_API_KEY")
	})

	t.Run("malformed environment", func(t *testing.T) {
		t.Setenv("PINECONE_API_KEY", "pc-key")
		t.Setenv("MODEL_LOAD_MAX_ATTEMPTS", "three")

		_, err := LoadConfig(&Flags{}, logger)
		require.NotNil(t, err)
		assert.True(t, errors.Is(err, enterrors.ErrConfiguration))
		assert.Contains(t, err.Error(), "MODEL_LOAD_MAX_ATTEMPTS")
	})
}
