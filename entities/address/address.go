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

// Package address holds the typed records that flow out of the similarity
// index and back to the caller.
package address

// Candidate is one raw neighbor returned by the similarity index. An empty
// Address means the index record carried no usable address metadata.
type Candidate struct {
	ID      string
	Score   float64
	Address string
}

// HasAddress reports whether the candidate can take part in ranking.
func (c Candidate) HasAddress() bool {
	return c.Address != ""
}

// Result is a deduplicated address with the best score observed for it.
// Within one result list addresses are pairwise distinct.
type Result struct {
	Address       string  `json:"address"`
	Score         float64 `json:"score"`
	GoogleMapsURL string  `json:"google_maps_url"`
	// ID of the index record that produced Score
	ID string `json:"id,omitempty"`
}

// NewResult builds a Result for the given best-scoring candidate.
func NewResult(c Candidate) Result {
	return Result{
		Address:       c.Address,
		Score:         c.Score,
		GoogleMapsURL: GoogleMapsURL(c.Address),
		ID:            c.ID,
	}
}
