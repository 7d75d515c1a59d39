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

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/weaviate/img2address/entities/address"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

func writeResults(w io.Writer, format string, results []address.Result) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, results)
	case OutputText, "":
		return writeText(w, results)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, results []address.Result) error {
	if _, err := fmt.Fprintf(w, "\nFound %d unique addresses:\n", len(results)); err != nil {
		return errors.Wrap(err, "write results")
	}
	for i, res := range results {
		_, err := fmt.Fprintf(w, "%d. Address: %s\n   Score: %.4f\n   Google Maps: %s\n\n",
			i+1, res.Address, res.Score, res.GoogleMapsURL)
		if err != nil {
			return errors.Wrap(err, "write results")
		}
	}
	return nil
}

func writeJSON(w io.Writer, results []address.Result) error {
	if results == nil {
		results = []address.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(results), "write results")
}
