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

// Package errors defines the failure classes of the address lookup
// pipeline. Every error leaving the pipeline wraps exactly one of the
// sentinels below, so callers can tell them apart with errors.Is.
package errors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrConfiguration marks missing or invalid credentials, index names or
	// endpoints. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrModelUnavailable is returned once the embedding model could not be
	// acquired within the retry budget.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInvalidInput covers undecodable or unsupported images and invalid
	// request parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidParameter is the ErrInvalidInput of out of range lookup
	// options, as opposed to a bad image.
	ErrInvalidParameter = fmt.Errorf("invalid parameter: %w", ErrInvalidInput)

	// ErrEmbedding is a failed forward pass for a single request.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexQuery covers an unreachable similarity index, a missing index
	// and any non-successful index response.
	ErrIndexQuery = errors.New("index query failed")
)

func NewConfiguration(format string, args ...any) error {
	return pkgerrors.Wrapf(ErrConfiguration, format, args...)
}

func NewInvalidInput(format string, args ...any) error {
	return pkgerrors.Wrapf(ErrInvalidInput, format, args...)
}

func NewInvalidParameter(format string, args ...any) error {
	return pkgerrors.Wrapf(ErrInvalidParameter, format, args...)
}

// NewModelUnavailable wraps the last acquisition error.
func NewModelUnavailable(cause error) error {
	return &classified{class: ErrModelUnavailable, cause: cause}
}

func NewEmbedding(cause error) error {
	return &classified{class: ErrEmbedding, cause: cause}
}

func NewIndexQuery(cause error) error {
	return &classified{class: ErrIndexQuery, cause: cause}
}

// classified keeps both the class and the original cause reachable through
// errors.Is / errors.As.
type classified struct {
	class error
	cause error
}

func (e *classified) Error() string {
	if e.cause == nil {
		return e.class.Error()
	}
	return fmt.Sprintf("%s: %s", e.class.Error(), e.cause.Error())
}

func (e *classified) Unwrap() []error {
	if e.cause == nil {
		return []error{e.class}
	}
	return []error{e.class, e.cause}
}

// Format prints the cause with %+v so stack traces recorded by
// github.com/pkg/errors end up in the logs.
func (e *classified) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.cause != nil {
		fmt.Fprintf(s, "%s: %+v", e.class.Error(), e.cause)
		return
	}
	fmt.Fprint(s, e.Error())
}
