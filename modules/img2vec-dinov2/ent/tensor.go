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

// Tensor is a dense FP32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// ImageTensorShape is the NCHW shape of one preprocessed image.
func ImageTensorShape() []int64 {
	return []int64{1, Channels, ImageSize, ImageSize}
}

// Elements is the product of all dimensions.
func (t *Tensor) Elements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}
