package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jzx17/gometer/pkg/config"
	"github.com/jzx17/gometer/pkg/stats"
	"github.com/jzx17/gometer/pkg/timer"
	"github.com/jzx17/gometer/pkg/types"
)

func smallWorkload() workload {
	return workload{
		Tasks:      []string{"fetch", "store"},
		Iterations: 20,
		Workers:    4,
		MaxDelay:   time.Millisecond,
	}
}

func TestWorkload_Validate(t *testing.T) {
	tests := map[string]workload{
		"no tasks":       {Workers: 1},
		"no workers":     {Tasks: []string{"a"}},
		"negative runs":  {Tasks: []string{"a"}, Workers: 1, Iterations: -1},
		"negative delay": {Tasks: []string{"a"}, Workers: 1, MaxDelay: -time.Second},
	}
	for name, w := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, w.validate(), types.ErrInvalidConfig)
		})
	}
	assert.NoError(t, smallWorkload().validate())
}

func TestRunWorkload(t *testing.T) {
	var out bytes.Buffer
	w := smallWorkload()
	w.CSVPath = filepath.Join(t.TempDir(), "timers.csv")

	require.NoError(t, runWorkload(context.Background(), config.Default(), zap.NewNop(), w, &out))

	report := out.String()
	assert.Contains(t, report, "fetch")
	assert.Contains(t, report, "store")
	assert.Contains(t, strings.ToUpper(report), "AVERAGE")

	data, err := os.ReadFile(w.CSVPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, w.Iterations+1)
	assert.Equal(t, timer.CSVHeader, lines[0])
}

func TestRunWorkload_Metrics(t *testing.T) {
	var out bytes.Buffer
	w := smallWorkload()
	w.MetricsAddr = "127.0.0.1:0"

	require.NoError(t, runWorkload(context.Background(), nil, zap.NewNop(), w, &out))
	assert.Contains(t, out.String(), "fetch")
}

func TestRunWorkload_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runWorkload(ctx, nil, zap.NewNop(), smallWorkload(), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timers.csv")
	rows := []string{
		timer.CSVHeader,
		"1709294400000,fetch,,10,10000000,1,",
		"1709294400010,fetch,,30,30000000,2,",
		"not,a,row",
		"1709294400020,store,db,5,5000000,1,key\x1fvalue",
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, report(context.Background(), nil, []string{path}, false, &out))
	assert.Contains(t, out.String(), "fetch")
	assert.Contains(t, out.String(), "20ms")
	assert.Contains(t, out.String(), "store")

	err := report(context.Background(), nil, []string{path}, true, &bytes.Buffer{})
	assert.ErrorIs(t, err, types.ErrInvalidCSV)

	err = report(context.Background(), nil, []string{filepath.Join(dir, "missing.csv")}, true, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRenderSnapshots(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderSnapshots(&out, nil))
	assert.Equal(t, "No timers recorded\n", out.String())

	out.Reset()
	require.NoError(t, renderSnapshots(&out, []stats.Snapshot{
		{Task: "fetch", Count: 2, Total: 40 * time.Millisecond, Min: 10 * time.Millisecond, Max: 30 * time.Millisecond},
	}))
	assert.Contains(t, out.String(), "fetch")
	assert.Contains(t, out.String(), "40ms")
	assert.Contains(t, out.String(), "20ms")
}

func TestRootCommand_Flags(t *testing.T) {
	for _, name := range []string{"run", "report"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("record"))
}
