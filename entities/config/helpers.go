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

package config

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

func Enabled(value string) bool {
	switch strings.ToLower(value) {
	case "on", "enabled", "1", "true":
		return true
	default:
		return false
	}
}

// ParseDuration accepts Go duration strings ("30s") as well as a plain number
// of seconds ("30").
func ParseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, errors.Errorf("parse %s: empty value", name)
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, errors.Errorf("parse %s: %q is neither a duration nor a number of seconds", name, value)
	}
	if int64(seconds) > math.MaxInt64/int64(time.Second) {
		return 0, errors.Errorf("parse %s: %d seconds is out of range", name, seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}
