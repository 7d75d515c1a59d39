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
	enterrors "github.com/weaviate/img2address/entities/errors"
)

const (
	DefaultTopK = 5
	// fetchPerAddress candidates are fetched per requested address, since
	// many index records share one building
	fetchPerAddress = 10
	// DefaultMaxResults caps the fetch breadth unless the caller overrides it
	DefaultMaxResults = 50
	// MaxFetch is the largest topK the similarity index accepts
	MaxFetch = 10000
)

type Options struct {
	// TopK is the number of distinct addresses wanted
	TopK int
	// MaxResults overrides the number of candidates fetched from the index.
	// Zero applies the default policy.
	MaxResults int
}

func DefaultOptions() Options {
	return Options{TopK: DefaultTopK}
}

func (o Options) Validate() error {
	if o.TopK <= 0 {
		return enterrors.NewInvalidParameter("top_k must be a positive integer, got %d", o.TopK)
	}
	if o.TopK > MaxFetch {
		return enterrors.NewInvalidParameter("top_k must not exceed %d, got %d", MaxFetch, o.TopK)
	}
	if o.MaxResults < 0 {
		return enterrors.NewInvalidParameter("max_results must not be negative, got %d", o.MaxResults)
	}
	return nil
}

// FetchCount is the number of raw candidates requested from the index for
// topK distinct addresses: maxResults when set, otherwise ten per address
// up to DefaultMaxResults. Never fewer than topK, never more than MaxFetch.
func FetchCount(topK, maxResults int) int {
	fetch := maxResults
	if fetch <= 0 {
		fetch = min(fetchPerAddress*topK, DefaultMaxResults)
	}
	fetch = max(fetch, topK)
	return min(fetch, MaxFetch)
}
