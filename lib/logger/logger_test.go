package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProductionIsJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(envProd, &buf)

	log.Debug("hidden")
	log.Info("shown", "op", "test")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "test", rec["op"])
}

func TestNew_LocalIsPretty(t *testing.T) {
	var buf bytes.Buffer
	New(envLocal, &buf).Debug("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}
