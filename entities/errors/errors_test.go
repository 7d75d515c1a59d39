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
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	cause := pkgerrors.New("connection refused")

	tests := []struct {
		name    string
		err     error
		class   error
		outcome string
	}{
		{"configuration", NewConfiguration("missing %s", "PINECONE_API_KEY"), ErrConfiguration, OutcomeConfiguration},
		{"invalid input", NewInvalidInput("decode image"), ErrInvalidInput, OutcomeInvalidInput},
		{"invalid parameter", NewInvalidParameter("top_k must be positive"), ErrInvalidInput, OutcomeInvalidInput},
		{"model unavailable", NewModelUnavailable(cause), ErrModelUnavailable, OutcomeModelUnavailable},
		{"embedding", NewEmbedding(cause), ErrEmbedding, OutcomeEmbedding},
		{"index query", NewIndexQuery(cause), ErrIndexQuery, OutcomeIndexQuery},
		{"wrapped by pkg/errors", pkgerrors.Wrap(NewIndexQuery(cause), "locate"), ErrIndexQuery, OutcomeIndexQuery},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.True(t, errors.Is(test.err, test.class))
			assert.Equal(t, test.outcome, Outcome(test.err))
			assert.NotEmpty(t, UserMessage(test.err))
		})
	}
}

func TestClassifiedKeepsCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewIndexQuery(cause)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "index query failed: context deadline exceeded", err.Error())
	// the class wins over the cause for reporting
	assert.Equal(t, OutcomeIndexQuery, Outcome(err))
}

func TestClassifiedFormatsStack(t *testing.T) {
	err := NewEmbedding(pkgerrors.New("boom"))

	assert.Equal(t, "embedding failed: boom", fmt.Sprintf("%v", err))
	assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")

	for _, err := range []error{
		NewConfiguration("missing %s", "PINECONE_API_KEY"),
		NewInvalidInput("decode image"),
		NewInvalidParameter("top_k must be positive"),
	} {
		assert.Contains(t, fmt.Sprintf("%+v", err), "TestClassifiedFormatsStack")
	}
	assert.Equal(t, "missing PINECONE_API_KEY: configuration error",
		NewConfiguration("missing %s", "PINECONE_API_KEY").Error())
}

func TestOutcomeAndUserMessage(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, OutcomeCanceled, Outcome(fmt.Errorf("x: %w", context.Canceled)))
	assert.Equal(t, OutcomeInternal, Outcome(errors.New("something else")))
	assert.Equal(t, "Cannot process the image right now, please try again later.",
		UserMessage(NewModelUnavailable(nil)))

	msg := UserMessage(NewIndexQuery(errors.New("secret host name leaked")))
	assert.NotContains(t, msg, "secret")

	image := UserMessage(NewInvalidInput("decode image"))
	params := UserMessage(NewInvalidParameter("top_k must be positive, got 0"))
	assert.Contains(t, image, "supported image")
	assert.Contains(t, params, "top_k")
	assert.NotEqual(t, image, params)
	assert.False(t, errors.Is(NewInvalidInput("decode image"), ErrInvalidParameter))
}
