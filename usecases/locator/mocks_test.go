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

package locator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/weaviate/img2address/entities/address"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
)

type fakeModelProvider struct {
	mock.Mock
}

func (f *fakeModelProvider) EnsureLoaded(ctx context.Context) (*ent.Model, error) {
	args := f.Called(ctx)
	model, _ := args.Get(0).(*ent.Model)
	return model, args.Error(1)
}

type fakeEmbedder struct {
	mock.Mock
}

func (f *fakeEmbedder) Embed(ctx context.Context, requestID string, model *ent.Model,
	tensor *ent.Tensor,
) ([]float32, error) {
	args := f.Called(ctx, requestID, model, tensor)
	vector, _ := args.Get(0).([]float32)
	return vector, args.Error(1)
}

type fakeIndex struct {
	mock.Mock
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, topK int) ([]address.Candidate, error) {
	args := f.Called(ctx, vector, topK)
	candidates, _ := args.Get(0).([]address.Candidate)
	return candidates, args.Error(1)
}
