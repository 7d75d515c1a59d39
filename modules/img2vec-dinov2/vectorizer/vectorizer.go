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
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/img2address/entities/errors"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
)

type Client interface {
	Infer(ctx context.Context, requestID string, exec ent.ExecutionContext,
		tensor *ent.Tensor, binaryData bool) (*ent.VectorizationResult, error)
}

type Vectorizer struct {
	client     Client
	binaryData bool
	logger     logrus.FieldLogger
	// sem is nil unless requests are serialized
	sem chan struct{}
}

func New(client Client, config ent.ModuleConfig, logger logrus.FieldLogger) *Vectorizer {
	v := &Vectorizer{
		client:     client,
		binaryData: config.BinaryData,
		logger:     logger,
	}
	if config.SerializeRequests {
		v.sem = make(chan struct{}, 1)
	}
	return v
}

// Embed runs the model over one preprocessed image. Inference errors wrap
// enterrors.ErrEmbedding; a canceled context is returned as such.
func (v *Vectorizer) Embed(ctx context.Context, requestID string, model *ent.Model,
	tensor *ent.Tensor,
) ([]float32, error) {
	if tensor == nil || int64(len(tensor.Data)) != tensor.Elements() {
		return nil, enterrors.NewEmbedding(errors.New("tensor data does not match its shape"))
	}

	if v.sem != nil {
		select {
		case v.sem <- struct{}{}:
			defer func() { <-v.sem }()
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "wait for inference slot")
		}
	}

	res, err := v.client.Infer(ctx, requestID, model.Exec, tensor, v.binaryData)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "embed image")
		}
		v.logger.WithField("action", "embed").WithField("request_id", requestID).
			WithError(err).Error("inference failed")
		return nil, enterrors.NewEmbedding(err)
	}

	if len(res.Vector) != model.Dimensions {
		return nil, enterrors.NewEmbedding(errors.Errorf("got %d dimensions from %s, expected %d",
			len(res.Vector), model.Name, model.Dimensions))
	}
	for i, f := range res.Vector {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, enterrors.NewEmbedding(errors.Errorf("non-finite value at dimension %d", i))
		}
	}

	return res.Vector, nil
}
