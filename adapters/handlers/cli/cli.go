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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/img2address/entities/address"
	enterrors "github.com/weaviate/img2address/entities/errors"
	"github.com/weaviate/img2address/usecases/config"
	"github.com/weaviate/img2address/usecases/locator"
	"github.com/weaviate/img2address/usecases/monitoring"
)

const Prompt = "Enter path to image to query: "

// Exit codes
const (
	ExitOK            = 0
	ExitConfiguration = 1
	ExitFailure       = 2
)

// Options represents Command line options
type Options struct {
	config.Flags

	Image      string        `long:"image" short:"i" description:"image to look up, prompts for paths on stdin when empty"`
	TopK       int           `long:"top-k" description:"number of distinct addresses to return (default: query.default_top_k)"`
	MaxResults int           `long:"max-results" description:"number of index matches to fetch (default: 10 per address, at most 50)"`
	Output     string        `long:"output" description:"result format" choice:"text" choice:"json" default:"text"`
	Timeout    time.Duration `long:"timeout" description:"deadline for one lookup, e.g. 30s (default: none)"`
}

type Locator interface {
	Locate(ctx context.Context, imagePath string, opts locator.Options) ([]address.Result, error)
}

type Runner struct {
	locator Locator
	opts    locator.Options
	format  string
	timeout time.Duration
	out     io.Writer
	errOut  io.Writer
	logger  logrus.FieldLogger
}

func NewRunner(l Locator, opts locator.Options, format string, timeout time.Duration,
	out, errOut io.Writer, logger logrus.FieldLogger,
) *Runner {
	return &Runner{
		locator: l,
		opts:    opts,
		format:  format,
		timeout: timeout,
		out:     out,
		errOut:  errOut,
		logger:  logger,
	}
}

// Query looks up one image and prints the result. Failures are reported to
// the user with a fixed message, details only go to the log.
func (r *Runner) Query(ctx context.Context, imagePath string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	results, err := r.locator.Locate(ctx, imagePath, r.opts)
	if err != nil {
		fmt.Fprintf(r.errOut, "Error: %s\n", enterrors.UserMessage(err))
		return err
	}
	return writeResults(r.out, r.format, results)
}

// Interactive prompts for image paths until the input ends or the user types
// exit. A failed lookup does not end the loop unless the process is
// misconfigured or ctx is done.
func (r *Runner) Interactive(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, Prompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		path := cleanPath(scanner.Text())
		switch path {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		err := r.Query(ctx, path)
		if err == nil {
			continue
		}
		if errors.Is(err, enterrors.ErrConfiguration) {
			r.logger.WithField("action", "prompt").WithError(err).
				Error("stopping, the lookup pipeline is misconfigured")
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// cleanPath trims whitespace and the quotes terminals add to dropped files.
func cleanPath(line string) string {
	path := strings.TrimSpace(line)
	if len(path) >= 2 {
		first, last := path[0], path[len(path)-1]
		if (first == '\'' || first == '"') && first == last {
			path = path[1 : len(path)-1]
		}
	}
	return path
}

// Main runs the command with parsed options and returns the exit code.
func Main(ctx context.Context, opts Options, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.LoadConfig(&opts.Flags, bootstrapLogger(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitConfiguration
	}

	logger := NewLogger(cfg.Logging, stderr)

	app, err := MakeApp(cfg, logger)
	if err != nil {
		logger.WithField("action", "startup").WithError(err).Error("could not configure the lookup pipeline")
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitConfiguration
	}

	if cfg.Monitoring.Enabled {
		server, err := monitoring.Listen(fmt.Sprintf(":%d", cfg.Monitoring.Port), app.Registry, app.Metrics, logger)
		if err != nil {
			logger.WithField("action", "startup").WithError(err).Error("could not serve metrics")
			return ExitConfiguration
		}
		metricsCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := server.Serve(metricsCtx); err != nil {
				logger.WithField("action", "metrics_listen").WithError(err).Error("metrics server stopped")
			}
		}()
	}

	runner := NewRunner(app.Locator, queryOptions(opts, cfg.Query), opts.Output, opts.Timeout,
		stdout, stderr, logger)

	if opts.Image != "" {
		err = runner.Query(ctx, opts.Image)
	} else {
		err = runner.Interactive(ctx, stdin)
	}
	return exitCode(err)
}

func queryOptions(opts Options, defaults config.Query) locator.Options {
	q := locator.Options{TopK: defaults.DefaultTopK, MaxResults: defaults.DefaultMaxResults}
	if opts.TopK != 0 {
		q.TopK = opts.TopK
	}
	if opts.MaxResults != 0 {
		q.MaxResults = opts.MaxResults
	}
	return q
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, enterrors.ErrConfiguration):
		return ExitConfiguration
	default:
		return ExitFailure
	}
}
