package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfig(t *testing.T) {
	conf := `{
	// Comments are allowed.
	"listen": ":6060",
	"store_config": {"use_adapter": "badgerdb", "worker_id": 1}
}`
	config, err := decodeConfig(strings.NewReader(conf))
	require.NoError(t, err)
	assert.Equal(t, ":6060", config.Listen)
	assert.Equal(t, "badgerdb", config.Store.UseAdapter)
	assert.Equal(t, 1, config.Store.WorkerID)
}

func TestDecodeConfigSyntaxError(t *testing.T) {
	_, err := decodeConfig(strings.NewReader("{\n\t\"listen\": ]\n}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error at ")
}

func TestDecodeConfigTypeError(t *testing.T) {
	_, err := decodeConfig(strings.NewReader(`{"listen": 6060}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal error in listen")
}
