package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	return records
}

func TestNew_JSONLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{level: "debug", want: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", want: []string{"INFO", "WARN", "ERROR"}},
		{level: "WARN", want: []string{"WARN", "ERROR"}},
		{level: "error", want: []string{"ERROR"}},
		{level: "verbose", want: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log, err := New(&Config{Level: tt.level, Format: "json", writer: buf})
			require.NoError(t, err)

			log.Debug("lock acquired")
			log.Info("tick started")
			log.Warn("backlog above threshold")
			log.Error("tick failed")

			var levels []string
			for _, rec := range decodeLines(t, buf) {
				levels = append(levels, rec["level"].(string))
			}
			assert.Equal(t, tt.want, levels)
		})
	}
}

func TestNew_SourceLocation(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: buf})
	require.NoError(t, err)

	log.Info("message archived")

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Contains(t, records[0], slog.SourceKey)
}

func TestNew_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "console", TimeFormat: "15:04:05", writer: buf})
	require.NoError(t, err)

	log.Info("import queued", slog.String("source", "wix"))

	out := buf.String()
	assert.Contains(t, out, "import queued")
	assert.Contains(t, out, "wix")
	assert.NotEqual(t, byte('{'), out[0])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("tick finished", slog.Int("processed", 3))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"processed":3`)
}

func TestNew_FileOutputError(t *testing.T) {
	log, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.Nil(t, log)
}

func TestLogger_ComponentAndWith(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", writer: buf})
	require.NoError(t, err)

	runnerLog := log.Component("runner")
	runnerLog.With(slog.String("queue", "import_shopify"), slog.Int64("msg_id", 7)).Info("message deleted")
	runnerLog.Info("tick finished")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)

	assert.Equal(t, "runner", records[0]["component"])
	assert.Equal(t, "import_shopify", records[0]["queue"])
	assert.EqualValues(t, 7, records[0]["msg_id"])

	assert.Equal(t, "runner", records[1]["component"])
	assert.NotContains(t, records[1], "queue")
}

func TestNewDiscard(t *testing.T) {
	log := NewDiscard()
	require.NotNil(t, log)
	log.Component("worker").Error("dropped", slog.Any("error", os.ErrClosed))
}
