package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"bad output", Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDerivedLoggersKeepFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&Config{Level: InfoLevel, Format: JSONFormat, Output: StdoutOutput, DisableTimestamp: true}, &buf)
	require.NoError(t, err)

	log.WithComponent("audit").
		WithFields(Fields{"run_id": "abc"}).
		WithError(errors.New("disk full")).
		Warn("write failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["component"])
	assert.Equal(t, "abc", entry["run_id"])
	assert.Equal(t, "disk full", entry["error"])
	assert.Equal(t, "warning", entry["level"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&Config{Level: WarnLevel, Format: TextFormat, Output: StdoutOutput, DisableTimestamp: true}, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&Config{Level: InfoLevel, Format: TextFormat, Output: StdoutOutput, DisableTimestamp: true}, &buf)
	require.NoError(t, err)

	p := NewProgressTracker(ProgressConfig{Operation: "ingest", Every: 2, Logger: log})
	for i := 0; i < 5; i++ {
		p.Increment()
	}
	p.Complete()

	assert.Equal(t, int64(5), p.Current())
	assert.Equal(t, 2, strings.Count(buf.String(), "msg=Progress"))
	assert.Contains(t, buf.String(), "Operation completed")
}
