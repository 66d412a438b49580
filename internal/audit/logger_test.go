package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogActionAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	logger.LogAction("transmit", `skill "khi"`, "SUCCESS", 12*time.Millisecond)
	logger.LogAction("sequence", "reward", "ABORTED", 3*time.Second)

	file, err := os.Open(filepath.Join(dir, "actions.jsonl"))
	require.NoError(t, err)
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, entries, 2)
	assert.Equal(t, "transmit", entries[0].Action)
	assert.Equal(t, "SUCCESS", entries[0].Outcome)
	assert.Equal(t, int64(12), entries[0].LatencyMs)
	assert.Equal(t, "ABORTED", entries[1].Outcome)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestNewLoggerCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	logger, err := NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	_, err = os.Stat(filepath.Join(dir, "actions.jsonl"))
	assert.NoError(t, err)
}
