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

// Package pinecone queries a Pinecone index over its REST API and converts
// the matches into address candidates.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/weaviate/img2address/entities/address"
	enterrors "github.com/weaviate/img2address/entities/errors"
)

const (
	DefaultControllerURL = "https://api.pinecone.io"
	APIVersion           = "2024-07"
	// MaxTopK is the largest topK a query accepts
	MaxTopK = 10000
	// MetadataAddressKey is the metadata field holding the street address
	MetadataAddressKey = "address"
)

type Config struct {
	APIKey    string
	IndexName string
	// Environment is informational: a mismatch with the index is logged
	Environment string
	// Host skips the control plane lookup when set
	Host          string
	Namespace     string
	ControllerURL string
	// QueriesPerSecond limits queries client side, 0 disables the limit
	QueriesPerSecond float64
	Timeout          time.Duration
}

type Client struct {
	apiKey        string
	indexName     string
	environment   string
	namespace     string
	controllerURL string
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        logrus.FieldLogger

	mu   sync.Mutex
	host string
}

func New(config Config, logger logrus.FieldLogger) (*Client, error) {
	if config.APIKey == "" {
		return nil, enterrors.NewConfiguration("no Pinecone API key, set PINECONE_API_KEY")
	}
	if config.IndexName == "" {
		return nil, enterrors.NewConfiguration("no Pinecone index name, set PINECONE_INDEX_NAME")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	controllerURL := config.ControllerURL
	if controllerURL == "" {
		controllerURL = DefaultControllerURL
	}

	c := &Client{
		apiKey:        config.APIKey,
		indexName:     config.IndexName,
		environment:   config.Environment,
		namespace:     config.Namespace,
		controllerURL: strings.TrimRight(controllerURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
	if config.Host != "" {
		c.host = normalizeHost(config.Host)
	}
	if config.QueriesPerSecond > 0 {
		burst := int(config.QueriesPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.QueriesPerSecond), burst)
	}
	return c, nil
}

// Query returns up to topK matches for vector, in the order the index
// returned them. Matches without a usable address come back with an empty
// Address.
func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]address.Candidate, error) {
	if len(vector) == 0 {
		return nil, enterrors.NewIndexQuery(errors.New("empty query vector"))
	}
	if topK <= 0 || topK > MaxTopK {
		return nil, enterrors.NewIndexQuery(errors.Errorf("topK %d out of range [1, %d]", topK, MaxTopK))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.classify(ctx, errors.Wrap(err, "wait for query rate limit"))
		}
	}

	host, err := c.resolveHost(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(queryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		IncludeValues:   false,
		Namespace:       c.namespace,
	})
	if err != nil {
		return nil, enterrors.NewIndexQuery(errors.Wrap(err, "marshal body"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, enterrors.NewIndexQuery(errors.Wrap(err, "create POST request"))
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	bodyBytes, status, err := c.do(req)
	if err != nil {
		return nil, c.classify(ctx, errors.Wrap(err, "send POST request"))
	}
	if err := c.statusError(status, bodyBytes, "query index"); err != nil {
		return nil, err
	}

	var resBody queryResponse
	if err := json.Unmarshal(bodyBytes, &resBody); err != nil {
		return nil, enterrors.NewIndexQuery(errors.Wrap(err, "unmarshal response body"))
	}

	return c.toCandidates(resBody.Matches), nil
}

// resolveHost looks up the data plane host of the index once. Failed
// lookups are not remembered.
func (c *Client) resolveHost(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.host != "" {
		return c.host, nil
	}

	endpoint := c.controllerURL + "/indexes/" + url.PathEscape(c.indexName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", enterrors.NewIndexQuery(errors.Wrap(err, "create describe index request"))
	}
	c.setHeaders(req)

	bodyBytes, status, err := c.do(req)
	if err != nil {
		return "", c.classify(ctx, errors.Wrap(err, "send describe index request"))
	}
	if status == http.StatusNotFound {
		return "", enterrors.NewIndexQuery(errors.Errorf("index %q does not exist", c.indexName))
	}
	if err := c.statusError(status, bodyBytes, "describe index"); err != nil {
		return "", err
	}

	var index describeIndexResponse
	if err := json.Unmarshal(bodyBytes, &index); err != nil {
		return "", enterrors.NewIndexQuery(errors.Wrap(err, "unmarshal describe index response"))
	}
	if index.Host == "" {
		return "", enterrors.NewIndexQuery(errors.Errorf("index %q has no host yet", c.indexName))
	}

	logger := c.logger.WithField("action", "index_describe").WithField("index", c.indexName)
	if location := index.Spec.location(); c.environment != "" && location != "" && location != c.environment {
		logger.WithField("configured", c.environment).WithField("actual", location).
			Warn("index lives in a different environment than configured")
	}
	if !index.Status.Ready {
		logger.WithField("state", index.Status.State).Warn("index is not ready")
	}
	logger.WithField("host", index.Host).WithField("dimension", index.Dimension).
		WithField("metric", index.Metric).Debug("resolved index host")

	c.host = normalizeHost(index.Host)
	return c.host, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("X-Pinecone-API-Version", APIVersion)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "read response body")
	}
	return bodyBytes, res.StatusCode, nil
}

// statusError rejects non-2xx answers. Rejected credentials are a
// configuration problem, everything else an index error.
func (c *Client) statusError(status int, body []byte, op string) error {
	switch {
	case status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return enterrors.NewConfiguration("%s: Pinecone rejected the API key (status %d): %s",
			op, status, errorMessage(body))
	default:
		return enterrors.NewIndexQuery(errors.Errorf("%s: fail with status %d: %s",
			op, status, errorMessage(body)))
	}
}

// classify keeps cancellation distinct from index failures.
func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "query index")
	}
	return enterrors.NewIndexQuery(err)
}

func (c *Client) toCandidates(matches []match) []address.Candidate {
	candidates := make([]address.Candidate, 0, len(matches))
	for _, m := range matches {
		addr, ok := m.Metadata[MetadataAddressKey].(string)
		if !ok && m.Metadata[MetadataAddressKey] != nil {
			c.logger.WithField("action", "index_query").WithField("id", m.ID).
				Debugf("ignoring %s metadata of type %T", MetadataAddressKey, m.Metadata[MetadataAddressKey])
		}
		candidates = append(candidates, address.Candidate{
			ID:      m.ID,
			Score:   m.Score,
			Address: addr,
		})
	}
	return candidates
}

func normalizeHost(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}
