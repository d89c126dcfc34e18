package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestConfigureLevel(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	Configure("debug", "json")
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logrus.GetLevel())
	}

	Configure("not-a-level", "json")
	if logrus.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info fallback for invalid input", logrus.GetLevel())
	}
}

func TestConfigureFormat(t *testing.T) {
	Configure("info", "text")
	if _, ok := logrus.StandardLogger().Formatter.(*logrus.TextFormatter); !ok {
		t.Error("expected TextFormatter")
	}

	Configure("info", "json")
	if _, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("expected JSONFormatter")
	}
}

func TestWithCorrelation(t *testing.T) {
	entry := WithCorrelation("abc-123")
	if entry.Data["correlation_id"] != "abc-123" {
		t.Errorf("correlation_id = %v, want abc-123", entry.Data["correlation_id"])
	}
}
