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
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/img2address/entities/address"
	"github.com/weaviate/img2address/modules/img2vec-dinov2/kservetest"
	"github.com/weaviate/img2address/usecases/config"
)

const testDims = 4

// fakeIndex answers the Pinecone describe and query calls for paris-18.
func fakeIndex(t *testing.T, queries *atomic.Int32) *httptest.Server {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "pc-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/indexes/paris-18":
			json.NewEncoder(w).Encode(map[string]any{
				"name":      "paris-18",
				"dimension": testDims,
				"metric":    "cosine",
				"host":      server.URL,
				"status":    map[string]any{"ready": true, "state": "Ready"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/query":
			queries.Add(1)
			var req map[string]any
			assert.Nil(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req["vector"], testDims)
			json.NewEncoder(w).Encode(map[string]any{
				"matches": []map[string]any{
					{"id": "etex-1", "score": 0.93, "metadata": map[string]any{"address": "26 rue Etex, 75018 Paris, France"}},
					{"id": "etex-2", "score": 0.9, "metadata": map[string]any{"address": "26 rue Etex, 75018 Paris, France"}},
					{"id": "nometa", "score": 0.85},
					{"id": "lepic-1", "score": 0.81, "metadata": map[string]any{"address": "3 rue Lepic, 75018 Paris, France"}},
				},
				"namespace": "",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeFacade(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 0xff})
		}
	}
	path := filepath.Join(t.TempDir(), "facade.png")
	f, err := os.Create(path)
	require.Nil(t, err)
	defer f.Close()
	require.Nil(t, png.Encode(f, img))
	return path
}

func setupEnv(t *testing.T, inferenceURL, controllerURL string) {
	t.Setenv("PINECONE_API_KEY", "pc-key")
	t.Setenv("PINECONE_CONTROLLER_URL", controllerURL)
	t.Setenv("INFERENCE_URL", inferenceURL)
	t.Setenv("INFERENCE_DIMENSIONS", "4")
	t.Setenv("MODEL_LOAD_BACKOFF", "1ms")
	t.Setenv("LOG_LEVEL", "error")
}

func TestMainLocatesAnImage(t *testing.T) {
	kserve := kservetest.NewServer("dinov2_vitb14", testDims)
	defer kserve.Close()
	var queries atomic.Int32
	index := fakeIndex(t, &queries)
	setupEnv(t, kserve.URL, index.URL)
	path := writeFacade(t)

	t.Run("text", func(t *testing.T) {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		code := Main(context.Background(), Options{Image: path, TopK: 2, Timeout: time.Minute},
			strings.NewReader(""), stdout, stderr)

		require.Equal(t, ExitOK, code, stderr.String())
		assert.Equal(t, "\nFound 2 unique addresses:\n"+
			"1. Address: 26 rue Etex, 75018 Paris, France\n"+
			"   Score: 0.9300\n"+
			"   Google Maps: https://www.google.com/maps/place/26%20rue%20Etex%2C%2075018%20Paris%2C%20France\n\n"+
			"2. Address: 3 rue Lepic, 75018 Paris, France\n"+
			"   Score: 0.8100\n"+
			"   Google Maps: https://www.google.com/maps/place/3%20rue%20Lepic%2C%2075018%20Paris%2C%20France\n\n",
			stdout.String())
	})

	t.Run("json", func(t *testing.T) {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		code := Main(context.Background(), Options{Image: path, Output: OutputJSON},
			strings.NewReader(""), stdout, stderr)
		require.Equal(t, ExitOK, code, stderr.String())

		var results []address.Result
		require.Nil(t, json.Unmarshal(stdout.Bytes(), &results))
		require.Len(t, results, 2)
		assert.Equal(t, "etex-1", results[0].ID)
		assert.Equal(t, "lepic-1", results[1].ID)
	})

	t.Run("interactive", func(t *testing.T) {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		stdin := strings.NewReader(path + "\n" + filepath.Join(t.TempDir(), "missing.jpg") + "\n")
		code := Main(context.Background(), Options{}, stdin, stdout, stderr)

		assert.Equal(t, ExitOK, code)
		assert.Equal(t, 3, strings.Count(stdout.String(), Prompt))
		assert.Contains(t, stdout.String(), "Found 2 unique addresses:")
		assert.Contains(t, stderr.String(), "Error: ")
	})

	t.Run("unreadable image", func(t *testing.T) {
		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		code := Main(context.Background(), Options{Image: filepath.Join(t.TempDir(), "missing.jpg")},
			strings.NewReader(""), stdout, stderr)

		assert.Equal(t, ExitFailure, code)
		assert.Empty(t, stdout.String())
	})

	assert.Equal(t, int32(3), queries.Load())
}

func TestMainRejectedAPIKey(t *testing.T) {
	kserve := kservetest.NewServer("dinov2_vitb14", testDims)
	defer kserve.Close()
	var queries atomic.Int32
	index := fakeIndex(t, &queries)
	setupEnv(t, kserve.URL, index.URL)
	t.Setenv("PINECONE_API_KEY", "revoked")

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := Main(context.Background(), Options{Image: writeFacade(t)}, strings.NewReader(""), stdout, stderr)

	assert.Equal(t, ExitConfiguration, code)
	assert.Contains(t, stderr.String(), "not configured correctly")
}

func TestMakeApp(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("monitoring disabled", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Index.APIKey = "pc-key"

		app, err := MakeApp(&cfg, logger)
		require.Nil(t, err)
		assert.NotNil(t, app.Locator)
		assert.NotNil(t, app.Metrics)
		assert.Nil(t, app.Registry)
		_, loaded := app.Models.Loaded()
		assert.False(t, loaded)
	})

	t.Run("monitoring enabled", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.Index.APIKey = "pc-key"
		cfg.Monitoring.Enabled = true

		app, err := MakeApp(&cfg, logger)
		require.Nil(t, err)
		require.NotNil(t, app.Registry)

		app.Metrics.Located("success", 1)
		families, err := app.Registry.Gather()
		require.Nil(t, err)
		names := map[string]bool{}
		for _, f := range families {
			names[f.GetName()] = true
		}
		assert.True(t, names["img2address_locate_requests_total"])
		assert.True(t, names["go_goroutines"])
	})

	t.Run("index client rejects config", func(t *testing.T) {
		cfg := config.Defaults()

		_, err := MakeApp(&cfg, logger)
		assert.NotNil(t, err)
	})
}

func TestComponentConfigs(t *testing.T) {
	cfg := config.Defaults()
	cfg.Inference.BinaryData = true
	cfg.Inference.Timeout = config.Duration(90 * time.Second)
	cfg.Index.APIKey = "pc-key"
	cfg.Index.QueriesPerSecond = 2
	cfg.Index.CircuitBreaker.Enabled = true
	cfg.ResultCache.TTL = config.Duration(time.Minute)

	module := moduleConfig(cfg.Inference)
	assert.Equal(t, "http://localhost:8000", module.Origin)
	assert.Equal(t, "dinov2_vitb14", module.Model)
	assert.Equal(t, 768, module.Dimensions)
	assert.True(t, module.BinaryData)
	assert.Equal(t, 90*time.Second, module.Timeout)

	index := indexConfig(cfg.Index)
	assert.Equal(t, "paris-18", index.IndexName)
	assert.Equal(t, float64(2), index.QueriesPerSecond)

	lc := locatorConfig(&cfg)
	assert.True(t, lc.Breaker.Enabled)
	assert.Equal(t, uint32(config.DefaultBreakerFailures), lc.Breaker.ConsecutiveFailures)
	// cache stays off until enabled
	assert.Zero(t, lc.CacheTTL)

	cfg.ResultCache.Enabled = true
	assert.Equal(t, time.Minute, locatorConfig(&cfg).CacheTTL)
}
