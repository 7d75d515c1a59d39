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
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes a registry on /metrics.
type Server struct {
	listener net.Listener
	server   *http.Server
	logger   logrus.FieldLogger
}

// Listen binds addr and prepares a metrics server for gatherer. Open
// connections are tracked on m.ScrapeConnections.
func Listen(addr string, gatherer prometheus.Gatherer, m *Metrics, logger logrus.FieldLogger) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	if m != nil {
		l = CountingListener(l, m.ScrapeConnections)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		listener: l,
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger:   logger,
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.WithField("action", "metrics_listen").WithField("address", s.Addr()).
		Info("serving metrics")

	errs := make(chan error, 1)
	go func() {
		errs <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "serve metrics")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shut down metrics server")
		}
		return nil
	}
}

type countingListener struct {
	net.Listener
	count prometheus.Gauge
}

func CountingListener(l net.Listener, g prometheus.Gauge) net.Listener {
	return &countingListener{Listener: l, count: g}
}

func (c *countingListener) Accept() (net.Conn, error) {
	conn, err := c.Listener.Accept()
	if err != nil {
		return nil, err
	}
	c.count.Inc()
	return &countingConn{Conn: conn, count: c.count}, nil
}

type countingConn struct {
	net.Conn
	count prometheus.Gauge
	once  sync.Once
}

// Close may be called more than once, the gauge only drops on the first call.
func (c *countingConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() {
		c.count.Dec()
	})
	return err
}
