package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

func TestParseRunSettings(t *testing.T) {
	c, err := FromYAML([]byte(`
recursion_limit: 50
max_concurrency: 8
failure_policy: skip_failed
interrupt_before: [deploy, notify]
checkpoint:
  path: ./checkpoints.db
`))
	require.NoError(t, err)

	s := ParseRunSettings(c)
	assert.Equal(t, 50, s.RecursionLimit)
	assert.Equal(t, 8, s.MaxConcurrency)
	assert.Equal(t, "skip_failed", s.FailurePolicy)
	assert.Equal(t, []string{"deploy", "notify"}, s.InterruptBefore)
	assert.Equal(t, "./checkpoints.db", s.CheckpointPath)
}

func TestParseRunSettings_Empty(t *testing.T) {
	s := ParseRunSettings(New(nil))
	assert.Zero(t, s.RecursionLimit)
	assert.Zero(t, s.MaxConcurrency)
	assert.Empty(t, s.FailurePolicy)
	assert.Empty(t, s.InterruptBefore)
	assert.Empty(t, s.CheckpointPath)
}

func TestParseChannelSpecs(t *testing.T) {
	c, err := FromYAML([]byte(`
channels:
  messages: append
  verdict: last
  labels: union
`))
	require.NoError(t, err)

	specs, err := ParseChannelSpecs(c)
	require.NoError(t, err)
	require.Len(t, specs, 3)

	// Keys come out sorted so graph shape is stable across loads.
	assert.Equal(t, "labels", specs[0].Name)
	assert.Equal(t, "union", specs[0].Reducer.Name())
	assert.Equal(t, "messages", specs[1].Name)
	assert.Equal(t, "append", specs[1].Reducer.Name())
	assert.Equal(t, "verdict", specs[2].Name)
	assert.Equal(t, "last", specs[2].Reducer.Name())
}

func TestParseChannelSpecs_CustomReducer(t *testing.T) {
	channel.MustRegisterReducer("settings-test-count", func() channel.Reducer {
		return channel.Func("settings-test-count", func(current any, writes []any) (any, error) {
			n := 0
			if c, ok := current.(int); ok {
				n = c
			}
			return n + len(writes), nil
		})
	})

	c, err := FromYAML([]byte("channels: {hits: settings-test-count}"))
	require.NoError(t, err)

	specs, err := ParseChannelSpecs(c)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "settings-test-count", specs[0].Reducer.Name())
}

func TestParseChannelSpecs_Errors(t *testing.T) {
	t.Run("unknown reducer", func(t *testing.T) {
		c, err := FromYAML([]byte("channels: {log: no-such-reducer}"))
		require.NoError(t, err)

		_, err = ParseChannelSpecs(c)
		assert.Error(t, err)
	})

	t.Run("non-string reducer name", func(t *testing.T) {
		c, err := FromYAML([]byte("channels: {log: 42}"))
		require.NoError(t, err)

		_, err = ParseChannelSpecs(c)
		assert.Error(t, err)
	})

	t.Run("no channels section", func(t *testing.T) {
		specs, err := ParseChannelSpecs(New(nil))
		require.NoError(t, err)
		assert.Empty(t, specs)
	})
}
