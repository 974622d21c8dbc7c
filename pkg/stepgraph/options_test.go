package stepgraph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/checkpoint"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/config"
)

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    FailurePolicy
		wantErr bool
	}{
		{name: "empty defaults to fail fast", input: "", want: PolicyFailFast},
		{name: "fail_fast", input: "fail_fast", want: PolicyFailFast},
		{name: "abort_step alias", input: "abort_step", want: PolicyFailFast},
		{name: "skip_failed", input: "skip_failed", want: PolicySkipFailed},
		{name: "unknown", input: "retry_forever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailurePolicy_String(t *testing.T) {
	assert.Equal(t, "fail_fast", PolicyFailFast.String())
	assert.Equal(t, "skip_failed", PolicySkipFailed.String())
}

func TestRunConfig_Defaults(t *testing.T) {
	cfg := newRunConfig(nil)

	assert.Equal(t, DefaultRecursionLimit, cfg.recursionLimit)
	assert.Equal(t, 0, cfg.maxConcurrency)
	assert.Equal(t, PolicyFailFast, cfg.failurePolicy)
	assert.Nil(t, cfg.saver)
	assert.Nil(t, cfg.interrupts)
	assert.NotNil(t, cfg.metrics)
	assert.NotNil(t, cfg.spans)
}

func TestWithRecursionLimit_IgnoresInvalid(t *testing.T) {
	cfg := newRunConfig([]RunOption{WithRecursionLimit(0)})
	assert.Equal(t, DefaultRecursionLimit, cfg.recursionLimit)

	cfg = newRunConfig([]RunOption{WithRecursionLimit(-3)})
	assert.Equal(t, DefaultRecursionLimit, cfg.recursionLimit)

	cfg = newRunConfig([]RunOption{WithRecursionLimit(1)})
	assert.Equal(t, 1, cfg.recursionLimit)
}

func TestWithSettings(t *testing.T) {
	cfg := newRunConfig([]RunOption{WithSettings(config.RunSettings{
		RecursionLimit:  50,
		MaxConcurrency:  4,
		FailurePolicy:   "skip_failed",
		InterruptBefore: []string{"deploy", "notify"},
	})})

	assert.Equal(t, 50, cfg.recursionLimit)
	assert.Equal(t, 4, cfg.maxConcurrency)
	assert.Equal(t, PolicySkipFailed, cfg.failurePolicy)
	assert.True(t, cfg.interruptBefore["deploy"])
	assert.True(t, cfg.interruptBefore["notify"])
}

func TestWithSettings_ZeroValuesKeepDefaults(t *testing.T) {
	cfg := newRunConfig([]RunOption{WithSettings(config.RunSettings{})})

	assert.Equal(t, DefaultRecursionLimit, cfg.recursionLimit)
	assert.Equal(t, 0, cfg.maxConcurrency)
	assert.Equal(t, PolicyFailFast, cfg.failurePolicy)
	assert.Empty(t, cfg.interruptBefore)
}

func TestWithSettings_LaterOptionsOverride(t *testing.T) {
	cfg := newRunConfig([]RunOption{
		WithSettings(config.RunSettings{RecursionLimit: 50}),
		WithRecursionLimit(10),
	})
	assert.Equal(t, 10, cfg.recursionLimit)
}

func TestNewSaverFromSettings(t *testing.T) {
	t.Run("empty path is in-memory", func(t *testing.T) {
		saver, err := NewSaverFromSettings(config.RunSettings{})
		require.NoError(t, err)
		defer saver.Close()

		_, ok := saver.(*checkpoint.MemorySaver)
		assert.True(t, ok)
	})

	t.Run("path selects sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ckpt.db")
		saver, err := NewSaverFromSettings(config.RunSettings{CheckpointPath: path})
		require.NoError(t, err)
		defer saver.Close()

		_, ok := saver.(*checkpoint.SQLiteSaver)
		assert.True(t, ok)
	})
}

// TestSettings_EndToEnd loads YAML settings and runs a graph under them.
func TestSettings_EndToEnd(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
recursion_limit: 2
failure_policy: skip_failed
channels:
  log: append
  verdict: last
`))
	require.NoError(t, err)

	settings := config.ParseRunSettings(cfg)
	assert.Equal(t, 2, settings.RecursionLimit)
	assert.Equal(t, "skip_failed", settings.FailurePolicy)

	specs, err := config.ParseChannelSpecs(cfg)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	compiled := NewGraph().
		AddChannels(specs).
		AddNode("a", appendNode("a", "log"), Writes("log")).
		AddNode("bad", failingNode(assert.AnError), Writes("verdict")).
		AddEdge("a", "bad").
		SetEntry("a").
		MustCompile()

	result, err := compiled.Run(context.Background(), "t1", nil, WithSettings(settings))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, []string{"a"}, asStrings(result.Values["log"]))
	require.Contains(t, result.FailedNodes, "bad")
	assert.ErrorIs(t, result.FailedNodes["bad"], assert.AnError)
}
