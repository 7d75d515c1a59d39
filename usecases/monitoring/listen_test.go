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

package monitoring

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesMetrics(t *testing.T) {
	logger, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Located("success", 2)

	server, err := Listen("127.0.0.1:0", reg, m, logger)
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	res, err := client.Get("http://" + server.Addr() + "/metrics")
	require.Nil(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.Nil(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `img2address_locate_requests_total{outcome="success"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}

func TestListenOnBusyAddress(t *testing.T) {
	logger, _ := test.NewNullLogger()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer l.Close()

	_, err = Listen(l.Addr().String(), prometheus.NewRegistry(), nil, logger)
	assert.NotNil(t, err)
}

func TestCountingListener(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "open"})
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	l := CountingListener(inner, gauge)
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", inner.Addr().String())
	require.Nil(t, err)
	defer client.Close()

	conn := <-accepted
	assert.Equal(t, float64(1), testutil.ToFloat64(gauge))

	require.Nil(t, conn.Close())
	conn.Close()
	assert.Equal(t, float64(0), testutil.ToFloat64(gauge))
}
