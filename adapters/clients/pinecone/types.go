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

package pinecone

import (
	"encoding/json"
	"strings"
)

type describeIndexResponse struct {
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Host      string    `json:"host"`
	Spec      indexSpec `json:"spec"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type indexSpec struct {
	Pod *struct {
		Environment string `json:"environment"`
	} `json:"pod,omitempty"`
	Serverless *struct {
		Cloud  string `json:"cloud"`
		Region string `json:"region"`
	} `json:"serverless,omitempty"`
}

// location is the pod environment or the serverless region of the index.
func (s indexSpec) location() string {
	switch {
	case s.Pod != nil:
		return s.Pod.Environment
	case s.Serverless != nil:
		return s.Serverless.Region
	default:
		return ""
	}
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches   []match `json:"matches"`
	Namespace string  `json:"namespace"`
}

type match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// errorMessage extracts the message of the two error shapes the API uses:
// {"error":{"code":..,"message":..}} on the control plane and
// {"code":..,"message":..} on the data plane.
func errorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		if nested.Error.Message != "" {
			return nested.Error.Message
		}
		if nested.Message != "" {
			return nested.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256] + "..."
	}
	return msg
}
