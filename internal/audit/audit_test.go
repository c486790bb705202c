package audit_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-bank-reconciliation/internal/audit"
	"golang-bank-reconciliation/internal/audit/mocks"
	"golang-bank-reconciliation/pkg/logger"
)

func TestJSONLWriterFreshFileStartsAtZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "audit.jsonl")

	w, err := audit.OpenJSONL(path)
	require.NoError(t, err)
	w.SetRunID("abcdef0123456789")

	require.NoError(t, w.Record(audit.EventRunStarted, "start", map[string]interface{}{"b": 2, "a": 1}))
	require.NoError(t, w.Record(audit.EventRunCompleted, "done", nil))

	events, err := audit.ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(0), events[0].Seq)
	assert.Equal(t, int64(1), events[1].Seq)
	for _, ev := range events {
		assert.Equal(t, "abcdef0123456789", ev.RunID)
	}
	assert.NotNil(t, events[1].Details)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	first := bytes.SplitN(raw, []byte{'\n'}, 2)[0]
	assert.Equal(t, `{"details":{"a":1,"b":2},"message":"start","run_id":"abcdef0123456789","seq":0,"type":"run_started"}`, string(first))
}

func TestJSONLWriterContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	first, err := audit.OpenJSONL(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, first.Record(audit.EventStageCompleted, "stage", nil))
	}

	second, err := audit.OpenJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.NextSeq())
	require.NoError(t, second.Record(audit.EventRunStarted, "again", nil))

	events, err := audit.ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, int64(i), ev.Seq)
	}
}

func TestJSONLWriterNeverReusesSeqAfterCorruptTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	content := `{"seq":0,"type":"a","message":"","details":{}}` + "\n" +
		`{"seq":1,"type":"b","message":"","details":{}}` + "\n" +
		"not json\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	w, err := audit.OpenJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), w.NextSeq())
}

func TestJSONLWriterOmitsRunIDBeforeItIsKnown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := audit.OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, w.Record(audit.EventCLIError, "bad flags", nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "run_id")
}

func TestJSONLWriterFailureDoesNotAdvance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	w, err := audit.OpenJSONL(path)
	require.NoError(t, err)

	// a directory in place of the file makes the append fail
	require.NoError(t, os.Mkdir(path, 0755))
	assert.Error(t, w.Record(audit.EventRunStarted, "x", nil))
	assert.Equal(t, int64(0), w.NextSeq())
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var logBuf bytes.Buffer
	log, err := logger.NewWithWriter(&logger.Config{Level: logger.WarnLevel, Format: logger.TextFormat, Output: logger.StdoutOutput, DisableTimestamp: true}, &logBuf)
	require.NoError(t, err)

	inner := mocks.NewMockRecorder(ctrl)
	inner.EXPECT().
		Record(audit.EventMatchCreated, "created", gomock.Any()).
		Return(errors.New("disk full"))
	inner.EXPECT().
		Record(audit.EventRunCompleted, "done", gomock.Any()).
		Return(nil)

	be := audit.NewBestEffort(inner, log)
	assert.NoError(t, be.Record(audit.EventMatchCreated, "created", nil))
	assert.NoError(t, be.Record(audit.EventRunCompleted, "done", nil))

	assert.Equal(t, 1, be.Failures())
	assert.Contains(t, logBuf.String(), "disk full")
	assert.Contains(t, logBuf.String(), "event_type=match_created")
}

func TestBestEffortNilInner(t *testing.T) {
	be := audit.NewBestEffort(nil, nil)
	assert.NoError(t, be.Record("x", "y", nil))
	assert.Equal(t, 0, be.Failures())
}
