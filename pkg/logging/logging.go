// Package logging configures the shared logrus logger used throughout the
// pipeline, mirroring boskos/ranch's direct logrus.WithField/WithError
// usage rather than a bespoke logging abstraction.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Configure sets the global logrus level and formatter from the given
// level/format strings (as loaded by pkg/config). Unknown levels fall back
// to info rather than erroring, since a bad LOG_LEVEL should not prevent
// the process from starting.
func Configure(level, format string) {
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		logrus.SetLevel(lvl)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if strings.ToLower(format) == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

// WithCorrelation returns a logger entry tagged with a correlation id, used
// to tie together a FeatureAuditLog run's log lines.
func WithCorrelation(correlationID string) *logrus.Entry {
	return logrus.WithField("correlation_id", correlationID)
}
