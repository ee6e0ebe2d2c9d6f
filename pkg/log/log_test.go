package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	taskLogger := WithTaskID("T1")
	taskLogger.Info().Msg("hello")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "T1", decoded["task_id"])
	assert.Equal(t, "hello", decoded["message"])
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	componentLogger := WithComponent("supervisor")
	componentLogger.Warn().Msg("careful")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "supervisor", decoded["component"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Msg("should be filtered")
	assert.Empty(t, buf.String())

	Logger.Error().Msg("should appear")
	assert.NotEmpty(t, buf.String())
}
