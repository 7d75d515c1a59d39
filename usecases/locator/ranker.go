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
	"sort"

	"github.com/weaviate/img2address/entities/address"
)

type RankOptions struct {
	// ExhaustiveScan looks at every candidate instead of stopping once topK
	// distinct addresses were seen. Only matters if the index does not
	// return candidates strictly ordered by score.
	ExhaustiveScan bool
	// OnDropped is called for every candidate without an address
	OnDropped func(c address.Candidate)
}

// DedupeAndRank collapses candidates into at most topK distinct addresses,
// each with the best score seen for it, sorted by score descending and by
// address ascending on ties. The result is never nil.
func DedupeAndRank(candidates []address.Candidate, topK int, opts RankOptions) []address.Result {
	if topK <= 0 {
		return []address.Result{}
	}

	results := make([]address.Result, 0, min(topK, len(candidates)))
	seen := make(map[string]int, cap(results))
	for _, c := range candidates {
		if !opts.ExhaustiveScan && len(results) >= topK {
			break
		}
		if !c.HasAddress() {
			if opts.OnDropped != nil {
				opts.OnDropped(c)
			}
			continue
		}

		if pos, ok := seen[c.Address]; ok {
			if c.Score > results[pos].Score {
				results[pos] = address.NewResult(c)
			}
			continue
		}
		seen[c.Address] = len(results)
		results = append(results, address.NewResult(c))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Address < results[j].Address
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
