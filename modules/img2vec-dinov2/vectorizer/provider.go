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

package vectorizer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	enterrors "github.com/weaviate/img2address/entities/errors"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/clients"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
	"github.com/weaviate/img2address/usecases/monitoring"
	"github.com/weaviate/img2address/usecases/retry"
)

const (
	DefaultLoadAttempts = 3
	DefaultLoadBackoff  = 10 * time.Second
)

// ModelClient is the part of the inference server API needed to acquire
// the model.
type ModelClient interface {
	ServerReady(ctx context.Context) error
	ModelReady(ctx context.Context) error
	ModelMetadata(ctx context.Context) (*clients.ModelMetadata, error)
	ModelConfig(ctx context.Context) (*clients.ModelConfig, error)
}

type LoadConfig struct {
	// MaxAttempts counts the first attempt
	MaxAttempts int
	// Backoff is multiplied by the retry number: 10s, 20s, ...
	Backoff time.Duration
}

// ModelProvider acquires the embedding model once per process. Concurrent
// callers share a single acquisition; a failed acquisition is not
// remembered, so the next call tries again.
type ModelProvider struct {
	client  ModelClient
	config  ent.ModuleConfig
	load    LoadConfig
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics

	group singleflight.Group
	mu    sync.RWMutex
	model *ent.Model
}

func NewModelProvider(client ModelClient, config ent.ModuleConfig, load LoadConfig,
	logger logrus.FieldLogger, metrics *monitoring.Metrics,
) *ModelProvider {
	if load.MaxAttempts <= 0 {
		load.MaxAttempts = DefaultLoadAttempts
	}
	if load.Backoff <= 0 {
		load.Backoff = DefaultLoadBackoff
	}
	return &ModelProvider{
		client:  client,
		config:  config,
		load:    load,
		logger:  logger,
		metrics: metrics,
	}
}

// Loaded returns the model if it was acquired before, without contacting
// the inference server.
func (p *ModelProvider) Loaded() (*ent.Model, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model, p.model != nil
}

// EnsureLoaded returns the ready model, acquiring it first if needed. Once
// the retry budget is spent the error wraps enterrors.ErrModelUnavailable.
//
// The shared acquisition is detached from the caller's cancellation: a caller
// whose ctx is done stops waiting, but the others keep waiting on the same
// load. The load is bounded by the retry budget and the client timeout.
func (p *ModelProvider) EnsureLoaded(ctx context.Context) (*ent.Model, error) {
	if model, ok := p.Loaded(); ok {
		return model, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(p.config.Model, func() (any, error) {
		if model, ok := p.Loaded(); ok {
			return model, nil
		}
		model, err := p.acquire(loadCtx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.model = model
		p.mu.Unlock()
		return model, nil
	})

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "load model %q", p.config.Model)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ent.Model), nil
	}
}

func (p *ModelProvider) acquire(ctx context.Context) (*ent.Model, error) {
	logger := p.logger.WithField("action", "model_load").WithField("model", p.config.Model)

	var model *ent.Model
	attempt := 0
	op := func() error {
		attempt++
		m, err := p.tryLoad(ctx)
		p.metrics.ModelLoadAttempt(err)
		if err != nil {
			return err
		}
		model = m
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.WithField("attempt", attempt).WithError(err).
			Warnf("embedding model not available, retrying in %s", wait)
	}

	err := backoff.RetryNotify(op, retry.AttemptsBackOff(ctx, p.load.MaxAttempts, p.load.Backoff), notify)
	if err != nil {
		logger.WithField("attempts", attempt).WithError(err).Error("giving up on embedding model")
		return nil, enterrors.NewModelUnavailable(
			errors.Wrapf(err, "load model %q after %d attempt(s)", p.config.Model, attempt))
	}

	logger.WithField("device", model.Exec.Device).
		WithField("platform", model.Exec.Platform).
		WithField("dimensions", model.Dimensions).
		Infof("embedding model %s ready", model)
	return model, nil
}

// tryLoad is a single acquisition attempt. Errors that a retry cannot fix
// are marked permanent.
func (p *ModelProvider) tryLoad(ctx context.Context) (*ent.Model, error) {
	if err := p.client.ServerReady(ctx); err != nil {
		return nil, errors.Wrap(err, "inference server")
	}
	if err := p.client.ModelReady(ctx); err != nil {
		return nil, errors.Wrap(err, "model")
	}

	meta, err := p.client.ModelMetadata(ctx)
	if err != nil {
		return nil, err
	}
	model, err := p.resolve(meta)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	model.Exec.Device = p.detectDevice(ctx)
	return model, nil
}

// resolve checks the served model against the expected input and output
// signature.
func (p *ModelProvider) resolve(meta *clients.ModelMetadata) (*ent.Model, error) {
	input, err := pickTensor(meta.Inputs, p.config.InputName, "input")
	if err != nil {
		return nil, err
	}
	if input.Datatype != ent.DataTypeFP32 {
		return nil, errors.Errorf("input %q has datatype %s, expected %s",
			input.Name, input.Datatype, ent.DataTypeFP32)
	}
	if !clients.TensorShapeMatches(input.Shape, ent.ImageTensorShape()) {
		return nil, errors.Errorf("input %q has shape %v, expected %v",
			input.Name, input.Shape, ent.ImageTensorShape())
	}

	output, err := pickTensor(meta.Outputs, p.config.OutputName, "output")
	if err != nil {
		return nil, err
	}
	if output.Datatype != ent.DataTypeFP32 {
		return nil, errors.Errorf("output %q has datatype %s, expected %s",
			output.Name, output.Datatype, ent.DataTypeFP32)
	}
	dims := declaredDimensions(output.Shape)
	if dims <= 0 {
		return nil, errors.Errorf("output %q has shape %v, expected [-1, dims]", output.Name, output.Shape)
	}
	if p.config.Dimensions > 0 && dims != p.config.Dimensions {
		return nil, errors.Errorf("output %q has %d dimensions, expected %d",
			output.Name, dims, p.config.Dimensions)
	}

	return &ent.Model{
		Name:       p.config.Model,
		Version:    p.config.Version,
		Dimensions: dims,
		Exec: ent.ExecutionContext{
			Device:         ent.DeviceUnknown,
			Platform:       meta.Platform,
			Backend:        meta.Backend,
			InputName:      input.Name,
			InputDatatype:  input.Datatype,
			OutputName:     output.Name,
			OutputDatatype: output.Datatype,
		},
	}, nil
}

func pickTensor(specs []clients.TensorSpec, name, kind string) (clients.TensorSpec, error) {
	if name != "" {
		for _, spec := range specs {
			if spec.Name == name {
				return spec, nil
			}
		}
		return clients.TensorSpec{}, errors.Errorf("model has no %s named %q", kind, name)
	}
	if len(specs) != 1 {
		return clients.TensorSpec{}, errors.Errorf("model has %d %ss, configure the %s name", len(specs), kind, kind)
	}
	return specs[0], nil
}

// declaredDimensions accepts [dims], [1, dims] and [-1, dims].
func declaredDimensions(shape []int64) int {
	switch len(shape) {
	case 1:
		return int(shape[0])
	case 2:
		if shape[0] != 1 && shape[0] != -1 {
			return 0
		}
		return int(shape[1])
	default:
		return 0
	}
}

// detectDevice uses the model configuration extension. Servers without it
// report an unknown device, which is not an error.
func (p *ModelProvider) detectDevice(ctx context.Context) ent.Device {
	cfg, err := p.client.ModelConfig(ctx)
	if err != nil {
		if !errors.Is(err, clients.ErrNotFound) {
			p.logger.WithField("action", "model_load").WithError(err).
				Warn("cannot detect execution device")
		}
		return ent.DeviceUnknown
	}

	device := ent.DeviceUnknown
	for _, group := range cfg.InstanceGroup {
		switch group.Kind {
		case "KIND_GPU":
			return ent.DeviceGPU
		case "KIND_CPU":
			device = ent.DeviceCPU
		}
	}
	return device
}
