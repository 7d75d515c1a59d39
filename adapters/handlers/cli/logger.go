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
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/img2address/usecases/config"
)

type buildInfo struct {
	version, goVersion string
}

func currentBuild() buildInfo {
	b := buildInfo{version: "(devel)", goVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		b.version = info.Main.Version
	}
	return b
}

func (b buildInfo) annotate(e *logrus.Entry) {
	e.Data["build_version"] = b.version
	e.Data["build_go_version"] = b.goVersion
}

type JSONFormatter struct {
	*logrus.JSONFormatter
	build buildInfo
}

func NewJSONFormatter() logrus.Formatter {
	return &JSONFormatter{&logrus.JSONFormatter{}, currentBuild()}
}

func (f *JSONFormatter) Format(e *logrus.Entry) ([]byte, error) {
	f.build.annotate(e)
	return f.JSONFormatter.Format(e)
}

type TextFormatter struct {
	*logrus.TextFormatter
	build buildInfo
}

func NewTextFormatter() logrus.Formatter {
	return &TextFormatter{&logrus.TextFormatter{}, currentBuild()}
}

func (f *TextFormatter) Format(e *logrus.Entry) ([]byte, error) {
	f.build.annotate(e)
	return f.TextFormatter.Format(e)
}

// NewLogger builds the process logger. Logs go to out so that results on
// stdout stay machine readable.
func NewLogger(cfg config.Logging, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if cfg.Format == "text" {
		logger.SetFormatter(NewTextFormatter())
	} else {
		logger.SetFormatter(NewJSONFormatter())
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// bootstrapLogger is used until the configuration is loaded.
func bootstrapLogger(out io.Writer) *logrus.Logger {
	return NewLogger(config.Logging{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	}, out)
}
