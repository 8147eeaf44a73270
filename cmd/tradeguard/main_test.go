package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tradeguard/internal/config"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/orchestrator"
	"github.com/ducminhle1904/tradeguard/pkg/types"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tradeguard.yaml")
	content := `
log_level: error
log_dir: ` + filepath.Join(dir, "logs") + `
brokers:
  - name: sim
    kind: paper
    paper:
      cash: 50000
      prices:
        AAPL: 100
storage:
  backend: file
  path: ` + filepath.Join(dir, "state") + `
server:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		sizeMethod = ""
		exportOutput = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSizeCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := execute(t, "size", "--config", cfgPath, "--env", filepath.Join(dir, "none.env"),
		"--portfolio", "100000", "--price", "100", "--stop", "95", "--method", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "POSITION SIZE")
	assert.Contains(t, out, "fixed")
	assert.Contains(t, out, "risk_based")
	assert.Contains(t, out, "$2000.00", "percentage default of 2%")
}

func TestSizeCommandRejectsUnknownMethod(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "size", "--config", writeConfig(t, dir), "--env", filepath.Join(dir, "none.env"),
		"--portfolio", "100000", "--price", "100", "--method", "martingale")
	assert.Error(t, err)
}

func TestAppWiringAndExport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "sim", a.primary.Name())
	assert.Nil(t, a.server)

	res, err := a.guard.Submit(ctx, orchestrator.TradeIntent{Symbol: "AAPL", Side: types.SideBuy})
	require.NoError(t, err)
	require.Equal(t, orchestrator.StatusExecuted, res.Status, res.Reason)
	require.NotNil(t, res.Bracket)
	require.True(t, a.brackets.Cancel(res.Bracket.ID))

	a.stop(ctx)

	out, err := execute(t, "status", "--config", cfgPath, "--env", filepath.Join(dir, "none.env"), "--portfolio", "50000")
	require.NoError(t, err)
	assert.Contains(t, out, "1 / 10")
	assert.Contains(t, out, "ACTIVE BRACKETS (0)")

	report := filepath.Join(dir, "out", "report.xlsx")
	out, err = execute(t, "export", "--config", cfgPath, "--env", filepath.Join(dir, "none.env"), "--output", report)
	require.NoError(t, err)
	assert.Contains(t, out, "1 executions, 1 closed brackets")
	_, err = os.Stat(report)
	assert.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tradeguard v")
}
