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
	"os"
	"strconv"

	"github.com/pkg/errors"

	entcfg "github.com/weaviate/img2address/entities/config"
)

// FromEnv takes a *Config as it will respect initial config that has been
// provided by other means (e.g. a config file) and will only extend those that
// are set
func FromEnv(config *Config) error {
	if v := os.Getenv("PINECONE_API_KEY"); v != "" {
		config.Index.APIKey = v
	}
	if v := os.Getenv("PINECONE_INDEX_NAME"); v != "" {
		config.Index.Name = v
	}
	if v := os.Getenv("PINECONE_ENVIRONMENT"); v != "" {
		config.Index.Environment = v
	}
	if v := os.Getenv("PINECONE_INDEX_HOST"); v != "" {
		config.Index.Host = v
	}
	if v := os.Getenv("PINECONE_NAMESPACE"); v != "" {
		config.Index.Namespace = v
	}
	if v := os.Getenv("PINECONE_CONTROLLER_URL"); v != "" {
		config.Index.ControllerURL = v
	}
	if v := os.Getenv("PINECONE_QUERIES_PER_SECOND"); v != "" {
		asFloat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "parse PINECONE_QUERIES_PER_SECOND as float")
		}
		if asFloat < 0 {
			return errors.Errorf("PINECONE_QUERIES_PER_SECOND must not be negative, got %v", asFloat)
		}
		config.Index.QueriesPerSecond = asFloat
	}
	if err := parseDuration("PINECONE_TIMEOUT", &config.Index.Timeout); err != nil {
		return err
	}
	parseBool("PINECONE_CIRCUIT_BREAKER_ENABLED", &config.Index.CircuitBreaker.Enabled)

	if v := os.Getenv("INFERENCE_URL"); v != "" {
		config.Inference.URL = v
	}
	if v := os.Getenv("INFERENCE_MODEL_NAME"); v != "" {
		config.Inference.Model = v
	}
	if v := os.Getenv("INFERENCE_MODEL_VERSION"); v != "" {
		config.Inference.Version = v
	}
	if v := os.Getenv("INFERENCE_INPUT_NAME"); v != "" {
		config.Inference.InputName = v
	}
	if v := os.Getenv("INFERENCE_OUTPUT_NAME"); v != "" {
		config.Inference.OutputName = v
	}
	if err := parseNonNegativeInt("INFERENCE_DIMENSIONS", &config.Inference.Dimensions); err != nil {
		return err
	}
	parseBool("INFERENCE_BINARY_DATA", &config.Inference.BinaryData)
	parseBool("INFERENCE_SERIALIZE_REQUESTS", &config.Inference.SerializeRequests)
	if err := parseDuration("INFERENCE_TIMEOUT", &config.Inference.Timeout); err != nil {
		return err
	}

	if err := parsePositiveInt("MODEL_LOAD_MAX_ATTEMPTS", &config.ModelLoad.MaxAttempts); err != nil {
		return err
	}
	if err := parseDuration("MODEL_LOAD_BACKOFF", &config.ModelLoad.Backoff); err != nil {
		return err
	}

	if err := parsePositiveInt("QUERY_DEFAULTS_TOP_K", &config.Query.DefaultTopK); err != nil {
		return err
	}
	if err := parseNonNegativeInt("QUERY_DEFAULTS_MAX_RESULTS", &config.Query.DefaultMaxResults); err != nil {
		return err
	}
	parseBool("QUERY_EXHAUSTIVE_SCAN", &config.Query.ExhaustiveScan)

	parseBool("RESULT_CACHE_ENABLED", &config.ResultCache.Enabled)
	if err := parseDuration("RESULT_CACHE_TTL", &config.ResultCache.TTL); err != nil {
		return err
	}

	parseBool("PROMETHEUS_MONITORING_ENABLED", &config.Monitoring.Enabled)
	if err := parsePositiveInt("PROMETHEUS_MONITORING_PORT", &config.Monitoring.Port); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	return nil
}

// parseBool overrides target when the variable is set, so a file setting can
// be switched off from the environment.
func parseBool(envName string, target *bool) {
	if v := os.Getenv(envName); v != "" {
		*target = entcfg.Enabled(v)
	}
}

func parsePositiveInt(envName string, target *int) error {
	return parseInt(envName, target, func(i int) bool { return i > 0 }, "must be a positive integer")
}

func parseNonNegativeInt(envName string, target *int) error {
	return parseInt(envName, target, func(i int) bool { return i >= 0 }, "must not be negative")
}

func parseInt(envName string, target *int, valid func(int) bool, requirement string) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}
	asInt, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "parse %s as int", envName)
	}
	if !valid(asInt) {
		return errors.Errorf("%s %s, got %d", envName, requirement, asInt)
	}
	*target = asInt
	return nil
}

func parseDuration(envName string, target *Duration) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}
	d, err := entcfg.ParseDuration(envName, v)
	if err != nil {
		return err
	}
	if d <= 0 {
		return errors.Errorf("%s must be positive, got %s", envName, v)
	}
	*target = Duration(d)
	return nil
}
