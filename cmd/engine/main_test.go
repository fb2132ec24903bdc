package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func pricesCSV(days int) string {
	var b strings.Builder
	b.WriteString("date,AAA,BBB,CCC\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a, bb, c := 100.0, 50.0, 20.0
	for i := 0; i < days; i++ {
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f\n", start.AddDate(0, 0, i).Format("2006-01-02"), a, bb, c)
		a *= 1.004
		bb *= 1 + 0.01*float64(i%3-1)
		c *= 0.999
	}
	return b.String()
}

func run(t *testing.T, args ...string) (map[string]interface{}, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err != nil {
		return nil, err
	}
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	return decoded, nil
}

func TestOptimizeCommand(t *testing.T) {
	dir := t.TempDir()
	prices := writeFile(t, dir, "prices.csv", pricesCSV(40))
	caps := writeFile(t, dir, "caps.csv", "asset,cap\nAAA,300\nBBB,200\nCCC,100\n")

	out, err := run(t, "optimize", "--prices", prices, "--caps", caps, "--date", "2024-02-01")
	require.NoError(t, err)

	alloc := out["allocation"].(map[string]interface{})
	weights := alloc["weights"].(map[string]interface{})
	total := 0.0
	for _, w := range weights {
		total += w.(float64)
	}
	assert.InDelta(t, 1.0, total, 1e-6)
	assert.Equal(t, "done", out["states"].([]interface{})[len(out["states"].([]interface{}))-1])
}

func TestBacktestCommand(t *testing.T) {
	dir := t.TempDir()
	prices := writeFile(t, dir, "prices.csv", pricesCSV(30))

	out, err := run(t, "backtest", "--prices", prices, "--initial-value", "1000")
	require.NoError(t, err)

	values := out["values"].(map[string]interface{})["values"].([]interface{})
	assert.Len(t, values, 30)
	// entering the market on day one costs 0.1% of the portfolio
	assert.InDelta(t, 999.0, values[0].(float64), 1e-9)
	assert.NotEmpty(t, out["trades"])
	assert.NotEmpty(t, out["snapshot"].(map[string]interface{})["id"])
}

func TestMetricsCommand(t *testing.T) {
	dir := t.TempDir()
	values := writeFile(t, dir, "values.csv", "date,value\n2024-01-01,100\n2024-01-02,102\n2024-01-03,101\n2024-01-04,105\n")
	flows := writeFile(t, dir, "flows.csv", "date,amount\n2024-01-03,1\n")

	out, err := run(t, "metrics", "--values", values, "--flows", flows, "--rolling", "2")
	require.NoError(t, err)

	snapshot := out["snapshot"].(map[string]interface{})
	assert.Equal(t, true, snapshot["has_cash_flows"])
	assert.Len(t, out["rolling"], 2)
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	prices := writeFile(t, dir, "prices.csv", pricesCSV(5))

	_, err := run(t, "optimize", "--prices", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	_, err = run(t, "optimize", "--prices", prices, "--date", "June 1")
	assert.Error(t, err)

	_, err = run(t, "metrics")
	assert.Error(t, err)
}
