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

// Package locator finds the street addresses of the buildings most similar
// to a photo: it decodes and preprocesses the image, embeds it, queries the
// similarity index and ranks the distinct addresses it found.
package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/weaviate/img2address/entities/address"
	enterrors "github.com/weaviate/img2address/entities/errors"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/preprocess"
	"github.com/weaviate/img2address/usecases/monitoring"
)

type ModelProvider interface {
	EnsureLoaded(ctx context.Context) (*ent.Model, error)
}

type Embedder interface {
	Embed(ctx context.Context, requestID string, model *ent.Model, tensor *ent.Tensor) ([]float32, error)
}

type Index interface {
	Query(ctx context.Context, vector []float32, topK int) ([]address.Candidate, error)
}

type Config struct {
	ExhaustiveScan bool
	// CacheTTL enables the result cache when positive
	CacheTTL time.Duration
	Breaker  BreakerConfig
}

type BreakerConfig struct {
	Enabled bool
	// ConsecutiveFailures of the index open the breaker
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a probe
	OpenTimeout time.Duration
}

const (
	DefaultBreakerFailures    = 5
	DefaultBreakerOpenTimeout = 30 * time.Second
)

type Locator struct {
	models   ModelProvider
	embedder Embedder
	index    Index
	config   Config
	logger   logrus.FieldLogger
	metrics  *monitoring.Metrics

	// nil when disabled
	cache   *cache.Cache
	breaker *gobreaker.CircuitBreaker
}

func New(models ModelProvider, embedder Embedder, index Index, config Config,
	logger logrus.FieldLogger, metrics *monitoring.Metrics,
) *Locator {
	l := &Locator{
		models:   models,
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
	if config.CacheTTL > 0 {
		l.cache = cache.New(config.CacheTTL, 2*config.CacheTTL)
	}
	if config.Breaker.Enabled {
		l.breaker = newBreaker(config.Breaker, logger)
	}
	return l
}

func newBreaker(config BreakerConfig, logger logrus.FieldLogger) *gobreaker.CircuitBreaker {
	failures := config.ConsecutiveFailures
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	timeout := config.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultBreakerOpenTimeout
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "similarity-index",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// rejected credentials or a canceled caller say nothing about the
		// health of the index
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, enterrors.ErrIndexQuery)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("action", "index_circuit_breaker").
				WithField("from", from.String()).WithField("to", to.String()).
				Warnf("circuit breaker %s changed state", name)
		},
	})
}

// Locate looks up the addresses for the image stored at imagePath. An empty,
// non-nil result means no address matched; every failure is returned as an
// error classified by entities/errors.
func (l *Locator) Locate(ctx context.Context, imagePath string, opts Options) ([]address.Result, error) {
	return l.locate(ctx, opts, logrus.Fields{"image": imagePath}, func() ([]byte, error) {
		return readImageFile(imagePath)
	})
}

// LocateReader is Locate for images that do not live on disk.
func (l *Locator) LocateReader(ctx context.Context, r io.Reader, opts Options) ([]address.Result, error) {
	return l.locate(ctx, opts, nil, func() ([]byte, error) {
		return readImage(r)
	})
}

func (l *Locator) locate(ctx context.Context, opts Options, fields logrus.Fields,
	read func() ([]byte, error),
) ([]address.Result, error) {
	requestID := uuid.NewString()
	logger := l.logger.WithField("action", "locate").WithField("request_id", requestID).WithFields(fields)
	start := time.Now()

	results, err := l.pipeline(ctx, requestID, logger, opts, read)

	outcome := enterrors.Outcome(err)
	count := -1
	if err == nil {
		count = len(results)
		if count == 0 {
			outcome = enterrors.OutcomeNoMatch
		}
	}
	l.metrics.Located(outcome, count)

	logger = logger.WithField("outcome", outcome).WithField("took", time.Since(start).String())
	switch outcome {
	case enterrors.OutcomeSuccess, enterrors.OutcomeNoMatch:
		logger.WithField("results", count).Debug("image located")
		return results, nil
	case enterrors.OutcomeInvalidInput, enterrors.OutcomeCanceled:
		logger.WithError(err).Warn("image not located")
	default:
		logger.Errorf("image not located: %+v", err)
	}
	return nil, err
}

func (l *Locator) pipeline(ctx context.Context, requestID string, logger logrus.FieldLogger,
	opts Options, read func() ([]byte, error),
) ([]address.Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	fetch := FetchCount(opts.TopK, opts.MaxResults)

	stage := time.Now()
	data, err := read()
	l.metrics.ObserveStage(monitoring.StageRead, stage)
	if err != nil {
		return nil, err
	}

	key := cacheKey(data, opts.TopK, fetch)
	if cached, ok := l.cached(key); ok {
		logger.Debug("result cache hit")
		return cached, nil
	}

	stage = time.Now()
	img, format, err := preprocess.Decode(data)
	l.metrics.ObserveStage(monitoring.StageDecode, stage)
	if err != nil {
		return nil, err
	}

	stage = time.Now()
	tensor := preprocess.Preprocess(img)
	l.metrics.ObserveStage(monitoring.StagePreprocess, stage)

	stage = time.Now()
	model, err := l.models.EnsureLoaded(ctx)
	l.metrics.ObserveStage(monitoring.StageModelLoad, stage)
	if err != nil {
		return nil, err
	}

	stage = time.Now()
	vector, err := l.embedder.Embed(ctx, requestID, model, tensor)
	l.metrics.ObserveStage(monitoring.StageEmbed, stage)
	if err != nil {
		return nil, err
	}

	stage = time.Now()
	candidates, err := l.query(ctx, vector, fetch)
	l.metrics.ObserveStage(monitoring.StageIndexQuery, stage)
	if err != nil {
		return nil, err
	}

	stage = time.Now()
	results := DedupeAndRank(candidates, opts.TopK, RankOptions{
		ExhaustiveScan: l.config.ExhaustiveScan,
		OnDropped: func(c address.Candidate) {
			logger.WithField("id", c.ID).Debug("skipping candidate without address")
			l.metrics.CandidateDropped()
		},
	})
	l.metrics.ObserveStage(monitoring.StageRank, stage)

	logger.WithField("format", format).WithField("model", model.Name).
		WithField("candidates", len(candidates)).WithField("fetch", fetch).
		Debug("ranked candidates")

	if l.cache != nil {
		l.cache.SetDefault(key, slices.Clone(results))
	}
	return results, nil
}

func (l *Locator) query(ctx context.Context, vector []float32, fetch int) ([]address.Candidate, error) {
	if l.breaker == nil {
		return l.index.Query(ctx, vector, fetch)
	}

	res, err := l.breaker.Execute(func() (interface{}, error) {
		return l.index.Query(ctx, vector, fetch)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, enterrors.NewIndexQuery(pkgerrors.Wrap(err, "similarity index"))
		}
		return nil, err
	}
	return res.([]address.Candidate), nil
}

func (l *Locator) cached(key string) ([]address.Result, bool) {
	if l.cache == nil {
		return nil, false
	}
	v, ok := l.cache.Get(key)
	l.metrics.CacheLookup(ok)
	if !ok {
		return nil, false
	}
	return slices.Clone(v.([]address.Result)), true
}

// cacheKey identifies a lookup by image content and fetch parameters.
func cacheKey(data []byte, topK, fetch int) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%d:%d", hex.EncodeToString(sum[:]), topK, fetch)
}

func readImageFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, enterrors.NewInvalidInput("open image: %v", err)
	}
	defer f.Close()

	return readImage(f)
}

func readImage(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, preprocess.MaxImageBytes+1))
	if err != nil {
		return nil, enterrors.NewInvalidInput("read image: %v", err)
	}
	if len(data) > preprocess.MaxImageBytes {
		return nil, enterrors.NewInvalidInput("image exceeds the limit of %d bytes", preprocess.MaxImageBytes)
	}
	return data, nil
}
