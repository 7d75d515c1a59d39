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

package errors

import (
	"context"
	"errors"
)

const (
	OutcomeSuccess          = "success"
	OutcomeNoMatch          = "no_match"
	OutcomeConfiguration    = "configuration_error"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeEmbedding        = "embedding_error"
	OutcomeIndexQuery       = "index_error"
	OutcomeCanceled         = "canceled"
	OutcomeInternal         = "internal_error"
)

// Outcome maps an error to a low-cardinality label for metrics and logs.
// A nil error is a success.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrConfiguration):
		return OutcomeConfiguration
	case errors.Is(err, ErrModelUnavailable):
		return OutcomeModelUnavailable
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalidInput
	case errors.Is(err, ErrEmbedding):
		return OutcomeEmbedding
	case errors.Is(err, ErrIndexQuery):
		return OutcomeIndexQuery
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeInternal
	}
}

// UserMessage is the only text about a failure that may be shown to an end
// user. The underlying error is for logs.
func UserMessage(err error) string {
	switch Outcome(err) {
	case OutcomeSuccess:
		return ""
	case OutcomeConfiguration:
		return "The service is not configured correctly."
	case OutcomeModelUnavailable:
		return "Cannot process the image right now, please try again later."
	case OutcomeInvalidInput:
		if errors.Is(err, ErrInvalidParameter) {
			return "The lookup options are invalid, check top_k and max_results."
		}
		return "The file could not be read as a supported image (png, jpg, jpeg, bmp, gif, tiff, webp)."
	case OutcomeCanceled:
		return "The request took too long and was canceled."
	default:
		return "An error occurred while processing the image."
	}
}
