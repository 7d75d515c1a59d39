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

// Package kservetest provides an in-process fake of a KServe v2 inference
// server hosting an image embedding model, for tests.
package kservetest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	InputName  = "pixel_values"
	OutputName = "embeddings"
)

type Server struct {
	*httptest.Server

	mu sync.Mutex
	// ModelName is the only model the server knows
	ModelName  string
	Dimensions int
	// InstanceKind is reported through the config extension, e.g. KIND_GPU.
	// When empty the config endpoint answers 404.
	InstanceKind string
	// NotReadyFor makes the first n server readiness checks fail with 503
	NotReadyFor int
	// InferStatus, when set, is returned for every inference call
	InferStatus int
	// InferDelay slows down every inference call
	InferDelay time.Duration
	// Embed maps the flat input tensor to an embedding. Defaults to
	// DefaultEmbed.
	Embed func(input []float32, dims int) []float32

	readyCalls int
	inferCalls int
	active     int
	maxActive  int
	lastBinary bool
}

func NewServer(modelName string, dims int) *Server {
	s := &Server{
		ModelName:    modelName,
		Dimensions:   dims,
		InstanceKind: "KIND_GPU",
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// DefaultEmbed folds the input into dims buckets. It is deterministic and
// sensitive to every input value.
func DefaultEmbed(input []float32, dims int) []float32 {
	out := make([]float32, dims)
	for i, v := range input {
		out[i%dims] += v * float32(1+i%7)
	}
	return out
}

// Configure changes the server behaviour while it is running.
func (s *Server) Configure(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *Server) ReadyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyCalls
}

func (s *Server) InferCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inferCalls
}

// MaxConcurrentInfers is the highest number of inference requests that were
// in flight at the same time.
func (s *Server) MaxConcurrentInfers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

func (s *Server) LastRequestWasBinary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBinary
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/v2/health/ready" && r.Method == http.MethodGet:
		s.mu.Lock()
		s.readyCalls++
		notReady := s.readyCalls <= s.NotReadyFor
		s.mu.Unlock()
		if notReady {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	case strings.HasPrefix(path, "/v2/models/"):
	default:
		writeError(w, http.StatusNotFound, "unknown endpoint "+path)
		return
	}

	rest := strings.TrimPrefix(path, "/v2/models/")
	name, suffix, _ := strings.Cut(rest, "/")
	if strings.HasPrefix(suffix, "versions/") {
		parts := strings.SplitN(strings.TrimPrefix(suffix, "versions/"), "/", 2)
		suffix = ""
		if len(parts) == 2 {
			suffix = parts[1]
		}
	}
	s.mu.Lock()
	modelName, instanceKind, dims := s.ModelName, s.InstanceKind, s.Dimensions
	s.mu.Unlock()

	if name != modelName {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Request for unknown model: '%s' is not found", name))
		return
	}

	switch {
	case suffix == "ready" && r.Method == http.MethodGet:
		w.WriteHeader(http.StatusOK)
	case suffix == "" && r.Method == http.MethodGet:
		writeMetadata(w, modelName, dims)
	case suffix == "config" && r.Method == http.MethodGet:
		if instanceKind == "" {
			writeError(w, http.StatusNotFound, "config extension not supported")
			return
		}
		writeJSON(w, map[string]any{
			"name":           modelName,
			"platform":       "onnxruntime_onnx",
			"max_batch_size": 8,
			"instance_group": []map[string]any{{"name": modelName, "kind": instanceKind, "count": 1}},
		})
	case suffix == "infer" && r.Method == http.MethodPost:
		s.infer(w, r)
	default:
		writeError(w, http.StatusNotFound, "unknown endpoint "+path)
	}
}

func writeMetadata(w http.ResponseWriter, modelName string, dims int) {
	writeJSON(w, map[string]any{
		"name":     modelName,
		"versions": []string{"1"},
		"platform": "onnxruntime_onnx",
		"inputs": []map[string]any{
			{"name": InputName, "datatype": "FP32", "shape": []int64{-1, 3, 224, 224}},
		},
		"outputs": []map[string]any{
			{"name": OutputName, "datatype": "FP32", "shape": []int64{-1, int64(dims)}},
		},
	})
}

type inferInput struct {
	Name       string         `json:"name"`
	Shape      []int64        `json:"shape"`
	Datatype   string         `json:"datatype"`
	Parameters map[string]any `json:"parameters"`
	Data       []float32      `json:"data"`
}

func (s *Server) infer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.inferCalls++
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	status := s.InferStatus
	embed := s.Embed
	dims := s.Dimensions
	modelName := s.ModelName
	delay := s.InferDelay
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	time.Sleep(delay)
	if status != 0 {
		writeError(w, status, "inference failed on purpose")
		return
	}
	if embed == nil {
		embed = DefaultEmbed
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	header := body
	var raw []byte
	binaryRequest := false
	if hl := r.Header.Get("Inference-Header-Content-Length"); hl != "" {
		n, err := strconv.Atoi(hl)
		if err != nil || n > len(body) {
			writeError(w, http.StatusBadRequest, "bad header length")
			return
		}
		header, raw = body[:n], body[n:]
		binaryRequest = true
	}
	s.mu.Lock()
	s.lastBinary = binaryRequest
	s.mu.Unlock()

	var req struct {
		ID     string       `json:"id"`
		Inputs []inferInput `json:"inputs"`
	}
	if err := json.Unmarshal(header, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Inputs) != 1 || req.Inputs[0].Name != InputName {
		writeError(w, http.StatusBadRequest, "expected exactly one input named "+InputName)
		return
	}
	in := req.Inputs[0]
	data := in.Data
	if binaryRequest {
		data = make([]float32, len(raw)/4)
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	}
	if len(in.Shape) != 4 || in.Shape[0] != 1 || in.Shape[1] != 3 || in.Shape[2] != 224 || in.Shape[3] != 224 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unexpected input shape %v", in.Shape))
		return
	}
	if len(data) != 3*224*224 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unexpected input size %d", len(data)))
		return
	}

	writeJSON(w, map[string]any{
		"model_name": modelName,
		"id":         req.ID,
		"outputs": []map[string]any{
			{"name": OutputName, "datatype": "FP32", "shape": []int64{1, int64(dims)}, "data": embed(data, dims)},
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
