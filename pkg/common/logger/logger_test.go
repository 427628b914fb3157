package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestConfigureWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "debug")
	defer Configure(&bytes.Buffer{}, "info")

	WithField("dataset", "study").Debug("evaluated")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["dataset"] != "study" || entry["msg"] != "evaluated" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestConfigureFallsBackToInfo(t *testing.T) {
	Configure(&bytes.Buffer{}, "verbose")
	if Log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", Log.GetLevel())
	}
}
