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

package clients

import (
	"context"

	"github.com/pkg/errors"

	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
)

type ModelMetadata struct {
	Name     string       `json:"name"`
	Platform string       `json:"platform"`
	Backend  string       `json:"backend"`
	Versions []string     `json:"versions"`
	Inputs   []TensorSpec `json:"inputs"`
	Outputs  []TensorSpec `json:"outputs"`
}

type TensorSpec struct {
	Name     string       `json:"name"`
	Shape    []int64      `json:"shape"`
	Datatype ent.DataType `json:"datatype"`
}

// ModelConfig is the subset of Triton's model configuration extension used
// to detect where the model instances run.
type ModelConfig struct {
	Name          string          `json:"name"`
	Platform      string          `json:"platform"`
	Backend       string          `json:"backend"`
	MaxBatchSize  int             `json:"max_batch_size"`
	InstanceGroup []InstanceGroup `json:"instance_group"`
}

type InstanceGroup struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
	GPUs  []int  `json:"gpus"`
}

func (c *KServeClient) ModelMetadata(ctx context.Context) (*ModelMetadata, error) {
	var meta ModelMetadata
	if err := c.getJSON(ctx, c.modelPath(""), &meta); err != nil {
		return nil, errors.Wrap(err, "get model metadata")
	}
	return &meta, nil
}

// ModelConfig returns ErrNotFound (wrapped) on servers that do not implement
// the model configuration extension.
func (c *KServeClient) ModelConfig(ctx context.Context) (*ModelConfig, error) {
	var cfg ModelConfig
	if err := c.getJSON(ctx, c.modelPath("/config"), &cfg); err != nil {
		return nil, errors.Wrap(err, "get model config")
	}
	return &cfg, nil
}
