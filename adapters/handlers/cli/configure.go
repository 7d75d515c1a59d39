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

package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/img2address/adapters/clients/pinecone"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/clients"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/vectorizer"
	"github.com/weaviate/img2address/usecases/config"
	"github.com/weaviate/img2address/usecases/locator"
	"github.com/weaviate/img2address/usecases/monitoring"
)

// App holds the wired components of one process.
type App struct {
	Config  *config.Config
	Locator *locator.Locator
	Models  *vectorizer.ModelProvider
	Metrics *monitoring.Metrics
	// Registry is only populated when monitoring is enabled
	Registry *prometheus.Registry
}

// MakeApp wires the lookup pipeline from a validated configuration. Nothing
// is contacted yet: the model is acquired on the first lookup and the index
// host on the first query.
func MakeApp(cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	app := &App{Config: cfg}

	reg := monitoring.NoopRegisterer()
	if cfg.Monitoring.Enabled {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg = app.Registry
	}
	app.Metrics = monitoring.NewMetrics(reg)

	module := moduleConfig(cfg.Inference)
	kserve := clients.New(module, logger)
	app.Models = vectorizer.NewModelProvider(kserve, module, vectorizer.LoadConfig{
		MaxAttempts: cfg.ModelLoad.MaxAttempts,
		Backoff:     cfg.ModelLoad.Backoff.Std(),
	}, logger, app.Metrics)
	embedder := vectorizer.New(kserve, module, logger)

	index, err := pinecone.New(indexConfig(cfg.Index), logger)
	if err != nil {
		return nil, err
	}

	app.Locator = locator.New(app.Models, embedder, index, locatorConfig(cfg), logger, app.Metrics)
	return app, nil
}

func moduleConfig(c config.Inference) ent.ModuleConfig {
	return ent.ModuleConfig{
		Origin:            c.URL,
		Model:             c.Model,
		Version:           c.Version,
		InputName:         c.InputName,
		OutputName:        c.OutputName,
		Dimensions:        c.Dimensions,
		BinaryData:        c.BinaryData,
		SerializeRequests: c.SerializeRequests,
		Timeout:           c.Timeout.Std(),
	}
}

func indexConfig(c config.Index) pinecone.Config {
	return pinecone.Config{
		APIKey:           c.APIKey,
		IndexName:        c.Name,
		Environment:      c.Environment,
		Host:             c.Host,
		Namespace:        c.Namespace,
		ControllerURL:    c.ControllerURL,
		QueriesPerSecond: c.QueriesPerSecond,
		Timeout:          c.Timeout.Std(),
	}
}

func locatorConfig(c *config.Config) locator.Config {
	lc := locator.Config{
		ExhaustiveScan: c.Query.ExhaustiveScan,
		Breaker: locator.BreakerConfig{
			Enabled:             c.Index.CircuitBreaker.Enabled,
			ConsecutiveFailures: c.Index.CircuitBreaker.ConsecutiveFailures,
			OpenTimeout:         c.Index.CircuitBreaker.OpenTimeout.Std(),
		},
	}
	if c.ResultCache.Enabled {
		lc.CacheTTL = c.ResultCache.TTL.Std()
	}
	return lc
}
