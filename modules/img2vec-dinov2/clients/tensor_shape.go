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

// TensorShapeMatches compares a declared model shape with a concrete one.
// A -1 in the declared shape matches any size.
func TensorShapeMatches[T int32 | int64](declared []T, concrete []T) bool {
	if len(declared) != len(concrete) {
		return false
	}
	for i := range declared {
		if declared[i] != -1 && declared[i] != concrete[i] {
			return false
		}
	}
	return true
}

// EmbeddingShape reports the number of dimensions of an embedding output of
// shape [1, dims] or [dims]. ok is false for any other shape.
func EmbeddingShape[T int32 | int64](shape []T) (dims int, ok bool) {
	switch len(shape) {
	case 1:
		return int(shape[0]), shape[0] > 0
	case 2:
		batchDim, outputDim := shape[0], shape[1]
		return int(outputDim), batchDim == 1 && outputDim > 0
	default:
		return 0, false
	}
}
