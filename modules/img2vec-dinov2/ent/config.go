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

package ent

import "time"

const (
	DefaultModelName  = "dinov2_vitb14"
	DefaultDimensions = 768
	// ImageSize is the square input resolution of the ViT-B/14 backbone
	ImageSize = 224
	Channels  = 3
)

// ModuleConfig describes where the embedding model is served and what it is
// expected to look like.
type ModuleConfig struct {
	// Origin of the KServe v2 compatible inference server, e.g.
	// http://localhost:8000
	Origin string
	Model  string
	// Version is optional, an empty version lets the server pick
	Version string
	// InputName and OutputName are optional: when empty they are taken from
	// the model metadata.
	InputName  string
	OutputName string
	Dimensions int
	// BinaryData sends the input tensor with the binary tensor data extension
	// instead of a JSON array.
	BinaryData bool
	// SerializeRequests puts all inference calls behind one lock for servers
	// that cannot run concurrent requests on the model.
	SerializeRequests bool
	Timeout           time.Duration
}

type DataType = string

const (
	DataTypeFP32 DataType = "FP32"
	DataTypeFP16 DataType = "FP16"
	DataTypeFP64 DataType = "FP64"
)
