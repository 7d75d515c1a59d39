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

// Package clients talks to a KServe v2 (Open Inference Protocol) server
// such as Triton or MLServer that hosts the image embedding model.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/img2address/modules/img2vec-dinov2/ent"
)

// ErrNotFound is returned when the server answers 404, e.g. for an unknown
// model or an unsupported extension endpoint.
var ErrNotFound = errors.New("not found")

type KServeClient struct {
	origin     string
	model      string
	version    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func New(config ent.ModuleConfig, logger logrus.FieldLogger) *KServeClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &KServeClient{
		origin:  strings.TrimRight(config.Origin, "/"),
		model:   config.Model,
		version: config.Version,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *KServeClient) url(path string) string {
	return fmt.Sprintf("%s%s", c.origin, path)
}

func (c *KServeClient) modelPath(suffix string) string {
	path := "/v2/models/" + url.PathEscape(c.model)
	if c.version != "" {
		path += "/versions/" + url.PathEscape(c.version)
	}
	return path + suffix
}

// ServerReady checks /v2/health/ready.
func (c *KServeClient) ServerReady(ctx context.Context) error {
	return c.checkReady(ctx, c.url("/v2/health/ready"))
}

// ModelReady checks the readiness endpoint of the configured model.
func (c *KServeClient) ModelReady(ctx context.Context) error {
	return c.checkReady(ctx, c.url(c.modelPath("/ready")))
}

func (c *KServeClient) checkReady(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "create check ready request")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send check ready request")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode == http.StatusNotFound {
		return errors.Wrapf(ErrNotFound, "not ready: %s", endpoint)
	}
	if res.StatusCode > 299 {
		return errors.Errorf("not ready: status %d", res.StatusCode)
	}
	return nil
}

// getJSON performs a GET and decodes a 2xx answer into out.
func (c *KServeClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return errors.Wrap(err, "create GET request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send GET request")
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if res.StatusCode == http.StatusNotFound {
		return errors.Wrapf(ErrNotFound, "GET %s", path)
	}
	if res.StatusCode > 299 {
		return statusError(res.StatusCode, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return errors.Wrapf(err, "unmarshal response body. Got: %s", truncate(bodyBytes))
	}
	return nil
}

func statusError(status int, body []byte) error {
	var resBody errorResponse
	if err := json.Unmarshal(body, &resBody); err == nil && resBody.Error != "" {
		return errors.Errorf("fail with status %d: %s", status, resBody.Error)
	}
	return errors.Errorf("fail with status %d: %s", status, truncate(body))
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

type errorResponse struct {
	Error string `json:"error"`
}
